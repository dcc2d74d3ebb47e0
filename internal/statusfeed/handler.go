package statusfeed

import (
	"encoding/json"
	"log"
	"time"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
	"github.com/BurhanCantCode/TasteMaker/internal/sync"
)

// Handler bridges sync engine events to feed broadcasts and keeps running
// profile statistics for connected clients.
type Handler struct {
	server *Server
	logger *log.Logger

	stats *StatsData
}

// NewHandler creates a new event handler connected to a feed server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
		stats:  &StatsData{},
	}
}

// Attach wires the handler to an orchestrator's observer hooks.
func (h *Handler) Attach(o *sync.Orchestrator) {
	o.OnStatusChange(func(s sync.Status) {
		h.OnStatusChanged(s)
	})
}

// OnStatusChanged handles sync status transitions
func (h *Handler) OnStatusChanged(s sync.Status) {
	h.logger.Printf("Sync status: %s", s)

	data := StatusData{Status: s.String()}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal status data: %v", err)
		return
	}

	msg := Message{
		Type:      MessageTypeStatus,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}
	h.server.Broadcast(msg)
}

// OnRemoteMerge handles a merged foreign-device update
func (h *Handler) OnRemoteMerge(p *profile.Profile, summary *profile.CachedSummary) {
	facts, likes := p.Counts()
	h.logger.Printf("Remote merge applied: %d facts, %d likes", facts, likes)

	data := RemoteMergeData{Facts: facts, Likes: likes}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal merge data: %v", err)
		return
	}

	msg := Message{
		Type:      MessageTypeRemoteMerge,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}
	h.server.Broadcast(msg)

	h.UpdateStats(p, summary)
}

// UpdateStats recomputes statistics from the current profile and
// broadcasts them. Useful for initialization or periodic refresh.
func (h *Handler) UpdateStats(p *profile.Profile, summary *profile.CachedSummary) {
	h.stats.Facts, h.stats.Likes = p.Counts()
	h.stats.SummaryFresh = summary.Fresh(p)
	h.broadcastStats()
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	dataJSON, err := json.Marshal(h.stats)
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	msg := Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}
	h.server.Broadcast(msg)
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	return *h.stats
}
