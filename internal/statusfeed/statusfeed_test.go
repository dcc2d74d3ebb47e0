package statusfeed

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
	"github.com/BurhanCantCode/TasteMaker/internal/sync"
	"github.com/coder/websocket"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	config := &Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}
	server := NewServer(config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	return server
}

func dialFeed(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestServerStartStop(t *testing.T) {
	server := startTestServer(t)
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
}

func TestStatusBroadcast(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialFeed(t, ctx, server)

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	server.BroadcastStatus("syncing")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStatus {
		t.Errorf("Expected message type %s, got %s", MessageTypeStatus, msg.Type)
	}

	var status StatusData
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status data: %v", err)
	}
	if status.Status != "syncing" {
		t.Errorf("Expected status syncing, got %s", status.Status)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		dialFeed(t, ctx, server)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestHandlerStatusEvents(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialFeed(t, ctx, server)

	handler.OnStatusChanged(sync.StatusSynced)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read status update: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStatus {
		t.Errorf("Expected message type %s, got %s", MessageTypeStatus, msg.Type)
	}

	var status StatusData
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status data: %v", err)
	}
	if status.Status != "synced" {
		t.Errorf("Expected status synced, got %s", status.Status)
	}
}

func TestHandlerRemoteMergeEvents(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialFeed(t, ctx, server)

	p := profile.NewEmptyProfile()
	p.Facts = []profile.Fact{
		{QuestionID: "q1", Question: "q?", Answer: "a", Timestamp: 100},
		{QuestionID: "q2", Question: "q?", Answer: "a", Timestamp: 200},
	}
	p.Likes = []profile.Like{
		{ItemID: "i1", Item: "item", Category: "food", Rating: "loved", Timestamp: 150},
	}
	summary := &profile.CachedSummary{Text: "s", FactsCount: 2, LikesCount: 1}

	handler.OnRemoteMerge(p, summary)

	// Read merge message
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read merge message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeRemoteMerge {
		t.Errorf("Expected message type %s, got %s", MessageTypeRemoteMerge, msg.Type)
	}

	var merge RemoteMergeData
	if err := json.Unmarshal(msg.Data, &merge); err != nil {
		t.Fatalf("Failed to unmarshal merge data: %v", err)
	}
	if merge.Facts != 2 || merge.Likes != 1 {
		t.Errorf("Merge data mismatch: got %+v, want facts=2 likes=1", merge)
	}

	// Read stats message
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats update: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal stats message: %v", err)
	}
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected message type %s, got %s", MessageTypeStats, msg.Type)
	}

	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats data: %v", err)
	}
	if !stats.SummaryFresh {
		t.Error("Expected summary to be fresh")
	}
}
