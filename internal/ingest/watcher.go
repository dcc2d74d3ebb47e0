// Package ingest provides file system watching for the profile spool.
//
// Front-end glue (the card UI, the onboarding flow) records mutations by
// dropping small JSON files into a spool directory. The ingester applies
// each record to the local store, removes the consumed file, and triggers
// an outbound sync.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// RecordType identifies which record a spool file carries.
type RecordType int

const (
	// TypeFact indicates a fact record (fact-*.json).
	TypeFact RecordType = iota
	// TypeLike indicates a like record (like-*.json).
	TypeLike
	// TypeSession indicates the card session cursor (session.json).
	TypeSession
	// TypeSummary indicates a cached summary (summary.json).
	TypeSummary
	// TypeLocation indicates the user location (location.json).
	TypeLocation
	// TypeInitialFacts indicates the free-text blob (initial-facts.json).
	TypeInitialFacts
)

// String returns a human-readable representation of the record type.
func (rt RecordType) String() string {
	switch rt {
	case TypeFact:
		return "fact"
	case TypeLike:
		return "like"
	case TypeSession:
		return "session"
	case TypeSummary:
		return "summary"
	case TypeLocation:
		return "location"
	case TypeInitialFacts:
		return "initial_facts"
	default:
		return "unknown"
	}
}

// FileEvent represents a spool file ready to be ingested.
type FileEvent struct {
	// Path is the absolute path to the file that changed.
	Path string
	// Type identifies the record the file carries.
	Type RecordType
}

// FileWatcher watches the spool directory for record files.
// It uses fsnotify for cross-platform file system event monitoring.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	events   chan FileEvent
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	spoolDir string
}

// NewFileWatcher creates a new FileWatcher instance.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the spool directory for record files.
func (fw *FileWatcher) Start(spoolDir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	fw.spoolDir = spoolDir
	if err := fw.watcher.Add(spoolDir); err != nil {
		return fmt.Errorf("failed to watch spool directory %s: %w", spoolDir, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching for file system events and cleans up resources.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	// Closing the underlying watcher unblocks the event loop
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent converts an fsnotify event to a FileEvent.
// Returns (FileEvent{}, false) when the event should be ignored.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	// A record file becomes ingestible once fully written; creates and
	// writes both qualify, deletes and renames are the ingester's own
	// cleanup coming back around.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return FileEvent{}, false
	}

	recordType, ok := ClassifyPath(event.Name)
	if !ok {
		return FileEvent{}, false
	}

	return FileEvent{Path: event.Name, Type: recordType}, true
}

// ClassifyPath maps a spool file name to its record type.
func ClassifyPath(path string) (RecordType, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".json") {
		return 0, false
	}

	switch {
	case strings.HasPrefix(name, "fact-"):
		return TypeFact, true
	case strings.HasPrefix(name, "like-"):
		return TypeLike, true
	case name == "session.json":
		return TypeSession, true
	case name == "summary.json":
		return TypeSummary, true
	case name == "location.json":
		return TypeLocation, true
	case name == "initial-facts.json":
		return TypeInitialFacts, true
	default:
		return 0, false
	}
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}
