package cloud

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func TestPushSendsOnlyProvidedFields(t *testing.T) {
	var got map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("failed to parse push body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "", testLogger())
	p := &profile.Profile{
		Facts: []profile.Fact{{QuestionID: "q1", Question: "?", Answer: "!", Timestamp: 10}},
		Likes: []profile.Like{},
	}

	if err := c.Push(context.Background(), "u1", p, nil, nil, "", 1234); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	for _, key := range []string{"facts", "likes", "lastModifiedAt"} {
		if _, ok := got[key]; !ok {
			t.Errorf("push body missing required field %q", key)
		}
	}
	for _, key := range []string{"initialFacts", "userLocation", "cardSession", "cachedSummary", "phoneNumber"} {
		if _, ok := got[key]; ok {
			t.Errorf("push body must not carry unspecified optional field %q", key)
		}
	}

	var writeTime int64
	if err := json.Unmarshal(got["lastModifiedAt"], &writeTime); err != nil || writeTime != 1234 {
		t.Errorf("lastModifiedAt = %s, want 1234", got["lastModifiedAt"])
	}
}

func TestPushIncludesOptionalFieldsWhenSet(t *testing.T) {
	var got map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "", testLogger())
	p := &profile.Profile{
		Facts:        []profile.Fact{},
		Likes:        []profile.Like{},
		InitialFacts: "hiking",
		UserLocation: &profile.Location{City: "Denver"},
	}
	session := &profile.CardSession{Mode: "ask", BatchProgress: 1, BatchSize: 10}
	summary := &profile.CachedSummary{Text: "s", FactsCount: 0, LikesCount: 0}

	if err := c.Push(context.Background(), "u1", p, session, summary, "+15550001", 0); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	for _, key := range []string{"initialFacts", "userLocation", "cardSession", "cachedSummary", "phoneNumber"} {
		if _, ok := got[key]; !ok {
			t.Errorf("push body missing optional field %q", key)
		}
	}
	var writeTime int64
	_ = json.Unmarshal(got["lastModifiedAt"], &writeTime)
	if writeTime == 0 {
		t.Error("zero writeTime should default to current time")
	}
}

func TestPushErrorSurfacesToCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "", testLogger())
	err := c.Push(context.Background(), "u1", profile.NewEmptyProfile(), nil, nil, "", 0)
	if err == nil {
		t.Fatal("expected push error")
	}
}

func TestPullReturnsNilWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, "", testLogger())
	doc, err := c.Pull(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil document for 404, got %+v", doc)
	}
}

func TestPullDecodesDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := profile.CloudDocument{
			Facts:          []profile.Fact{{QuestionID: "q1", Timestamp: 5}},
			LastModifiedAt: 99,
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	c := New(srv.URL, "", testLogger())
	doc, err := c.Pull(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if doc == nil || len(doc.Facts) != 1 || doc.LastModifiedAt != 99 {
		t.Errorf("unexpected document: %+v", doc)
	}
	if doc.Likes == nil {
		t.Error("absent likes should decode to empty, non-nil slice")
	}
}

func TestDeleteSwallowsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "", testLogger())
	// Must not panic or block; errors are logged only.
	c.Delete(context.Background(), "u1")
}

func TestSubscribeDeliversServerFrames(t *testing.T) {
	frame := changeEnvelope{
		Type: "change",
		Document: &profile.CloudDocument{
			Facts:          []profile.Fact{{QuestionID: "q1", Timestamp: 7}},
			LastModifiedAt: 7,
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		data, _ := json.Marshal(frame)
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		_ = conn.Write(ctx, websocket.MessageText, data)

		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	c := New(srv.URL, "", testLogger())

	var mu sync.Mutex
	var delivered []bool
	var docs []*profile.CloudDocument
	received := make(chan struct{}, 1)

	sub := c.Subscribe(context.Background(), "u1", func(doc *profile.CloudDocument, pending bool) {
		mu.Lock()
		delivered = append(delivered, pending)
		docs = append(docs, doc)
		mu.Unlock()
		select {
		case received <- struct{}{}:
		default:
		}
	})
	defer sub.Stop()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(docs) != 1 || docs[0].LastModifiedAt != 7 {
		t.Errorf("unexpected delivery: %+v", docs)
	}
	if delivered[0] {
		t.Error("server-confirmed frame should not be flagged pending")
	}
}

func TestPushEchoesPendingToSubscribers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusOK)
			return
		}
		// Watch endpoint: accept and park.
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		_, _, _ = conn.Read(r.Context())
	}))
	defer srv.Close()

	c := New(srv.URL, "", testLogger())

	received := make(chan bool, 1)
	sub := c.Subscribe(context.Background(), "u1", func(doc *profile.CloudDocument, pending bool) {
		received <- pending
	})
	defer sub.Stop()

	// Give the subscription a moment to dial.
	time.Sleep(100 * time.Millisecond)

	if err := c.Push(context.Background(), "u1", profile.NewEmptyProfile(), nil, nil, "", 42); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	select {
	case pending := <-received:
		if !pending {
			t.Error("local push echo should be flagged pending")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for local push echo")
	}
}
