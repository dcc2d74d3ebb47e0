// Package store provides the durable on-device record store for the sync
// engine.
//
// Records (profile, card session, cached summary) are persisted as JSON
// blobs in a local SQLite database opened in embedded mode with WAL. The
// store is deliberately forgiving on the read path: a missing, unreadable,
// or unparsable record loads as nil rather than an error, because the sync
// orchestrator treats "no data" and "bad data" identically. Writes surface
// errors to the caller.
//
// The store also performs a one-time migration from the legacy cookie-file
// format on first load of each record type (see legacy.go).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
)

// Record keys in the records table. One row per record type.
const (
	keyProfile     = "profile"
	keyCardSession = "card_session"
	keySummary     = "cached_summary"
)

// Store is the local persistent record store.
type Store struct {
	conn    *sql.DB
	dataDir string
	logger  *log.Logger
}

// Open opens (or creates) the store database at <dataDir>/profile.db.
//
// The database uses WAL mode so daemon reads don't block CLI writes.
// If logger is nil, a default logger writing to stderr is used.
// The caller must Close() the store when done.
func Open(dataDir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, "profile.db")
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{conn: conn, dataDir: dataDir, logger: logger}
	if err := s.initSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// saveRecord upserts one JSON record.
func (s *Store) saveRecord(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", key, err)
	}

	query := `
	INSERT INTO records (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := s.conn.Exec(query, key, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save %s record: %w", key, err)
	}
	return nil
}

// loadRecord reads one JSON record into out. Returns false when the record
// is absent, unreadable, or unparsable; such failures are logged, never
// propagated.
func (s *Store) loadRecord(key string, out any) bool {
	var raw string
	err := s.conn.QueryRow("SELECT value FROM records WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		s.logger.Printf("Warning: failed to read %s record: %v", key, err)
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Printf("Warning: failed to parse %s record: %v", key, err)
		return false
	}
	return true
}

func (s *Store) clearRecord(key string) error {
	if _, err := s.conn.Exec("DELETE FROM records WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to clear %s record: %w", key, err)
	}
	return nil
}

// SaveProfile persists the profile.
func (s *Store) SaveProfile(p *profile.Profile) error {
	return s.saveRecord(keyProfile, p)
}

// LoadProfile returns the stored profile, or nil when no usable profile
// exists. On first load with no current-format record, the legacy cookie
// file is migrated (once) before giving up.
func (s *Store) LoadProfile() *profile.Profile {
	var p profile.Profile
	if s.loadRecord(keyProfile, &p) {
		if p.Facts == nil {
			p.Facts = []profile.Fact{}
		}
		if p.Likes == nil {
			p.Likes = []profile.Like{}
		}
		return &p
	}
	if migrated := s.migrateLegacyProfile(); migrated != nil {
		return migrated
	}
	return nil
}

// ClearProfile removes the stored profile.
func (s *Store) ClearProfile() error {
	return s.clearRecord(keyProfile)
}

// SaveCardSession persists the card session cursor.
func (s *Store) SaveCardSession(cs *profile.CardSession) error {
	return s.saveRecord(keyCardSession, cs)
}

// LoadCardSession returns the stored card session, or nil.
func (s *Store) LoadCardSession() *profile.CardSession {
	var cs profile.CardSession
	if s.loadRecord(keyCardSession, &cs) {
		return &cs
	}
	if migrated := s.migrateLegacyCardSession(); migrated != nil {
		return migrated
	}
	return nil
}

// ClearCardSession removes the stored card session.
func (s *Store) ClearCardSession() error {
	return s.clearRecord(keyCardSession)
}

// SaveSummary persists the cached profile summary.
func (s *Store) SaveSummary(sum *profile.CachedSummary) error {
	return s.saveRecord(keySummary, sum)
}

// LoadSummary returns the stored cached summary, or nil.
func (s *Store) LoadSummary() *profile.CachedSummary {
	var sum profile.CachedSummary
	if s.loadRecord(keySummary, &sum) {
		return &sum
	}
	if migrated := s.migrateLegacySummary(); migrated != nil {
		return migrated
	}
	return nil
}

// ClearSummary removes the stored cached summary.
func (s *Store) ClearSummary() error {
	return s.clearRecord(keySummary)
}

// ClearAll removes every record. Used by the full profile reset.
func (s *Store) ClearAll() error {
	if _, err := s.conn.Exec("DELETE FROM records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

// CreateEmptyProfile returns a fresh empty profile. Provided on the store
// so callers that only hold a store don't need the profile package for the
// first-launch path.
func (s *Store) CreateEmptyProfile() *profile.Profile {
	return profile.NewEmptyProfile()
}
