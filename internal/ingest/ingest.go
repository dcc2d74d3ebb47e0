package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
	"github.com/BurhanCantCode/TasteMaker/internal/store"
)

// Trigger schedules an outbound push of the given state. The sync
// orchestrator satisfies it.
type Trigger interface {
	TriggerSync(p *profile.Profile, session *profile.CardSession, summary *profile.CachedSummary)
}

// initialFactsRecord is the wire shape of initial-facts.json.
type initialFactsRecord struct {
	Text string `json:"text"`
}

// Ingester consumes spool files: each record is applied to the local
// store, the file is removed, and an outbound sync is triggered. A file is
// consumed at most once; a file that fails to decode is removed and
// skipped so it cannot wedge the spool.
type Ingester struct {
	spoolDir string
	store    *store.Store
	trigger  Trigger
	logger   *log.Logger

	watcher *FileWatcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an ingester for the given spool directory. If logger is nil,
// a default stderr logger is used.
func New(spoolDir string, st *store.Store, trigger Trigger, logger *log.Logger) *Ingester {
	if logger == nil {
		logger = log.New(os.Stderr, "[ingest] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Ingester{
		spoolDir: spoolDir,
		store:    st,
		trigger:  trigger,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start creates the spool directory if needed, drains any records that
// accumulated while the ingester was down, and begins watching.
func (in *Ingester) Start() error {
	if err := os.MkdirAll(in.spoolDir, 0o755); err != nil {
		return fmt.Errorf("create spool directory: %w", err)
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Start(in.spoolDir); err != nil {
		return err
	}
	in.watcher = watcher

	if err := in.drainExisting(); err != nil {
		in.watcher.Stop()
		return err
	}

	in.wg.Add(1)
	go in.run()
	return nil
}

// Stop halts watching and waits for the event loop to exit.
func (in *Ingester) Stop() {
	in.cancel()
	if in.watcher != nil {
		if err := in.watcher.Stop(); err != nil {
			in.logger.Printf("Stopping watcher: %v", err)
		}
	}
	in.wg.Wait()
}

// drainExisting consumes records already sitting in the spool, oldest
// file name first so fact/like sequence numbers apply in order.
func (in *Ingester) drainExisting() error {
	entries, err := os.ReadDir(in.spoolDir)
	if err != nil {
		return fmt.Errorf("read spool directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(in.spoolDir, name)
		if recordType, ok := ClassifyPath(path); ok {
			in.consume(FileEvent{Path: path, Type: recordType})
		}
	}
	return nil
}

func (in *Ingester) run() {
	defer in.wg.Done()

	for {
		select {
		case <-in.ctx.Done():
			return

		case event, ok := <-in.watcher.Events():
			if !ok {
				return
			}
			in.consume(event)

		case err, ok := <-in.watcher.Errors():
			if !ok {
				return
			}
			in.logger.Printf("Watcher error: %v", err)
		}
	}
}

// consume applies one spool record and removes the file.
func (in *Ingester) consume(event FileEvent) {
	data, err := os.ReadFile(event.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// Already consumed by an earlier event for the same file.
			return
		}
		in.logger.Printf("Reading %s record %s: %v", event.Type, event.Path, err)
		return
	}

	applied := in.apply(event.Type, data)
	if err := os.Remove(event.Path); err != nil && !os.IsNotExist(err) {
		in.logger.Printf("Removing consumed record %s: %v", event.Path, err)
	}
	if !applied {
		return
	}

	p := in.store.LoadProfile()
	if p == nil {
		p = in.store.CreateEmptyProfile()
	}
	in.trigger.TriggerSync(p, in.store.LoadCardSession(), in.store.LoadSummary())
}

func (in *Ingester) apply(recordType RecordType, data []byte) bool {
	switch recordType {
	case TypeFact:
		var f profile.Fact
		if err := json.Unmarshal(data, &f); err != nil {
			in.logger.Printf("Decoding fact record: %v", err)
			return false
		}
		return in.mutateProfile(func(p *profile.Profile) { p.AddFact(f) })

	case TypeLike:
		var l profile.Like
		if err := json.Unmarshal(data, &l); err != nil {
			in.logger.Printf("Decoding like record: %v", err)
			return false
		}
		return in.mutateProfile(func(p *profile.Profile) { p.AddLike(l) })

	case TypeSession:
		var cs profile.CardSession
		if err := json.Unmarshal(data, &cs); err != nil {
			in.logger.Printf("Decoding session record: %v", err)
			return false
		}
		if err := in.store.SaveCardSession(&cs); err != nil {
			in.logger.Printf("Saving session: %v", err)
			return false
		}
		return true

	case TypeSummary:
		var sum profile.CachedSummary
		if err := json.Unmarshal(data, &sum); err != nil {
			in.logger.Printf("Decoding summary record: %v", err)
			return false
		}
		if err := in.store.SaveSummary(&sum); err != nil {
			in.logger.Printf("Saving summary: %v", err)
			return false
		}
		return true

	case TypeLocation:
		var loc profile.Location
		if err := json.Unmarshal(data, &loc); err != nil {
			in.logger.Printf("Decoding location record: %v", err)
			return false
		}
		return in.mutateProfile(func(p *profile.Profile) { p.UserLocation = &loc })

	case TypeInitialFacts:
		var rec initialFactsRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			in.logger.Printf("Decoding initial-facts record: %v", err)
			return false
		}
		return in.mutateProfile(func(p *profile.Profile) { p.InitialFacts = rec.Text })

	default:
		return false
	}
}

func (in *Ingester) mutateProfile(mutate func(*profile.Profile)) bool {
	p := in.store.LoadProfile()
	if p == nil {
		p = in.store.CreateEmptyProfile()
	}
	mutate(p)
	if err := in.store.SaveProfile(p); err != nil {
		in.logger.Printf("Saving profile: %v", err)
		return false
	}
	return true
}
