package store

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
)

// Legacy record files written by the previous app release. Each holds a
// single line of percent-encoded JSON (the old cookie wire format).
const (
	legacyProfileFile = "tastemaker_profile"
	legacySessionFile = "tastemaker_session"
	legacySummaryFile = "tastemaker_summary"
)

// readLegacyRecord decodes one legacy cookie file into out. Returns false
// when the file is absent or undecodable.
func (s *Store) readLegacyRecord(name string, out any) bool {
	path := filepath.Join(s.dataDir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Printf("Warning: failed to read legacy record %s: %v", name, err)
		}
		return false
	}

	decoded, err := url.QueryUnescape(strings.TrimSpace(string(raw)))
	if err != nil {
		s.logger.Printf("Warning: failed to decode legacy record %s: %v", name, err)
		return false
	}
	if err := json.Unmarshal([]byte(decoded), out); err != nil {
		s.logger.Printf("Warning: failed to parse legacy record %s: %v", name, err)
		return false
	}
	return true
}

// removeLegacyRecord deletes a legacy file after a successful migration so
// the migration runs exactly once.
func (s *Store) removeLegacyRecord(name string) {
	path := filepath.Join(s.dataDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("Warning: failed to remove legacy record %s: %v", name, err)
	}
}

// migrateLegacyProfile imports the legacy profile file, re-saves it in the
// current format, and deletes the original. Returns nil when there is
// nothing to migrate or the re-save fails (the legacy file is kept so a
// later load can retry).
func (s *Store) migrateLegacyProfile() *profile.Profile {
	var p profile.Profile
	if !s.readLegacyRecord(legacyProfileFile, &p) {
		return nil
	}
	if p.Facts == nil {
		p.Facts = []profile.Fact{}
	}
	if p.Likes == nil {
		p.Likes = []profile.Like{}
	}

	if err := s.SaveProfile(&p); err != nil {
		s.logger.Printf("Warning: failed to migrate legacy profile: %v", err)
		return nil
	}
	s.removeLegacyRecord(legacyProfileFile)
	s.logger.Printf("Migrated legacy profile: %d facts, %d likes", len(p.Facts), len(p.Likes))
	return &p
}

func (s *Store) migrateLegacyCardSession() *profile.CardSession {
	var cs profile.CardSession
	if !s.readLegacyRecord(legacySessionFile, &cs) {
		return nil
	}
	if err := s.SaveCardSession(&cs); err != nil {
		s.logger.Printf("Warning: failed to migrate legacy card session: %v", err)
		return nil
	}
	s.removeLegacyRecord(legacySessionFile)
	return &cs
}

func (s *Store) migrateLegacySummary() *profile.CachedSummary {
	var sum profile.CachedSummary
	if !s.readLegacyRecord(legacySummaryFile, &sum) {
		return nil
	}
	if err := s.SaveSummary(&sum); err != nil {
		s.logger.Printf("Warning: failed to migrate legacy summary: %v", err)
		return nil
	}
	s.removeLegacyRecord(legacySummaryFile)
	return &sum
}

// MigrateResult reports what a forced migration pass imported.
type MigrateResult struct {
	ProfileMigrated bool
	SessionMigrated bool
	SummaryMigrated bool
	Facts           int
	Likes           int
}

// MigrateLegacy runs the legacy migration for every record type that has
// no current-format record yet. Used by the explicit migrate command;
// normal loads trigger the same migration lazily.
func (s *Store) MigrateLegacy() MigrateResult {
	var result MigrateResult

	var existing profile.Profile
	if !s.loadRecord(keyProfile, &existing) {
		if p := s.migrateLegacyProfile(); p != nil {
			result.ProfileMigrated = true
			result.Facts = len(p.Facts)
			result.Likes = len(p.Likes)
		}
	}

	var cs profile.CardSession
	if !s.loadRecord(keyCardSession, &cs) {
		if s.migrateLegacyCardSession() != nil {
			result.SessionMigrated = true
		}
	}

	var sum profile.CachedSummary
	if !s.loadRecord(keySummary, &sum) {
		if s.migrateLegacySummary() != nil {
			result.SummaryMigrated = true
		}
	}

	return result
}
