package ingest

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
	"github.com/BurhanCantCode/TasteMaker/internal/store"
)

type triggerRecorder struct {
	mu    sync.Mutex
	calls int
	last  *profile.Profile
}

func (r *triggerRecorder) TriggerSync(p *profile.Profile, session *profile.CardSession, summary *profile.CachedSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = p
}

func (r *triggerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func setupIngester(t *testing.T) (*Ingester, *store.Store, *triggerRecorder, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(dir, quietLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	spool := filepath.Join(dir, "spool")
	rec := &triggerRecorder{}
	in := New(spool, st, rec, quietLogger())
	return in, st, rec, spool
}

func writeRecord(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		name string
		want RecordType
		ok   bool
	}{
		{"fact-001.json", TypeFact, true},
		{"like-abc.json", TypeLike, true},
		{"session.json", TypeSession, true},
		{"summary.json", TypeSummary, true},
		{"location.json", TypeLocation, true},
		{"initial-facts.json", TypeInitialFacts, true},
		{"fact-001.tmp", 0, false},
		{"notes.json", 0, false},
	}
	for _, tt := range tests {
		got, ok := ClassifyPath(filepath.Join("/spool", tt.name))
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ClassifyPath(%s) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIngestFactRecord(t *testing.T) {
	in, st, rec, spool := setupIngester(t)
	if err := in.Start(); err != nil {
		t.Fatalf("starting ingester: %v", err)
	}
	defer in.Stop()

	fact := profile.Fact{QuestionID: "q1", Question: "Coffee or tea?", Answer: "coffee", Positive: true, Timestamp: 100}
	path := filepath.Join(spool, "fact-001.json")
	writeRecord(t, path, fact)

	waitFor(t, "fact to be ingested", func() bool {
		p := st.LoadProfile()
		return p != nil && len(p.Facts) == 1
	})

	p := st.LoadProfile()
	if p.Facts[0].QuestionID != "q1" || p.Facts[0].Answer != "coffee" {
		t.Errorf("ingested fact = %+v", p.Facts[0])
	}
	waitFor(t, "consumed file to be removed", func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	})
	if rec.count() == 0 {
		t.Error("ingestion did not trigger a sync")
	}
}

func TestIngestSessionAndSummary(t *testing.T) {
	in, st, _, spool := setupIngester(t)
	if err := in.Start(); err != nil {
		t.Fatalf("starting ingester: %v", err)
	}
	defer in.Stop()

	writeRecord(t, filepath.Join(spool, "session.json"), profile.CardSession{Mode: "result", BatchProgress: 2, BatchSize: 5})
	writeRecord(t, filepath.Join(spool, "summary.json"), profile.CachedSummary{Text: "likes coffee", FactsCount: 1, LikesCount: 0})

	waitFor(t, "session to be ingested", func() bool {
		return st.LoadCardSession() != nil
	})
	waitFor(t, "summary to be ingested", func() bool {
		return st.LoadSummary() != nil
	})

	cs := st.LoadCardSession()
	if cs.Mode != "result" || cs.BatchProgress != 2 {
		t.Errorf("ingested session = %+v", cs)
	}
	if sum := st.LoadSummary(); sum.Text != "likes coffee" {
		t.Errorf("ingested summary = %+v", sum)
	}
}

func TestDrainExistingOnStart(t *testing.T) {
	in, st, rec, spool := setupIngester(t)

	// Records accumulated while the ingester was down.
	if err := os.MkdirAll(spool, 0o755); err != nil {
		t.Fatal(err)
	}
	writeRecord(t, filepath.Join(spool, "fact-001.json"), profile.Fact{QuestionID: "q1", Question: "q?", Answer: "a", Timestamp: 100})
	writeRecord(t, filepath.Join(spool, "like-001.json"), profile.Like{ItemID: "i1", Item: "ramen", Category: "food", Rating: "loved", Timestamp: 200})

	if err := in.Start(); err != nil {
		t.Fatalf("starting ingester: %v", err)
	}
	defer in.Stop()

	p := st.LoadProfile()
	if p == nil {
		t.Fatal("no profile after drain")
	}
	facts, likes := p.Counts()
	if facts != 1 || likes != 1 {
		t.Errorf("drained %d facts / %d likes, want 1/1", facts, likes)
	}
	if rec.count() != 2 {
		t.Errorf("drain triggered %d syncs, want 2", rec.count())
	}

	entries, err := os.ReadDir(spool)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left in spool after drain, want 0", len(entries))
	}
}

func TestCorruptRecordRemovedAndSkipped(t *testing.T) {
	in, st, rec, spool := setupIngester(t)
	if err := os.MkdirAll(spool, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(spool, "fact-bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := in.Start(); err != nil {
		t.Fatalf("starting ingester: %v", err)
	}
	defer in.Stop()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt record left in spool")
	}
	if p := st.LoadProfile(); p != nil && len(p.Facts) != 0 {
		t.Error("corrupt record mutated the profile")
	}
	if rec.count() != 0 {
		t.Errorf("corrupt record triggered %d syncs, want 0", rec.count())
	}
}

func TestFactReplacesSameQuestion(t *testing.T) {
	in, st, _, spool := setupIngester(t)
	if err := os.MkdirAll(spool, 0o755); err != nil {
		t.Fatal(err)
	}
	writeRecord(t, filepath.Join(spool, "fact-001.json"), profile.Fact{QuestionID: "q1", Question: "q?", Answer: "old", Timestamp: 100})
	writeRecord(t, filepath.Join(spool, "fact-002.json"), profile.Fact{QuestionID: "q1", Question: "q?", Answer: "new", Timestamp: 200})

	if err := in.Start(); err != nil {
		t.Fatalf("starting ingester: %v", err)
	}
	defer in.Stop()

	p := st.LoadProfile()
	if p == nil || len(p.Facts) != 1 {
		t.Fatalf("profile facts = %+v, want exactly one", p)
	}
	if p.Facts[0].Answer != "new" {
		t.Errorf("kept answer %q, want the later record", p.Facts[0].Answer)
	}
}
