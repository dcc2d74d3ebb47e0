// Package netmon tracks network connectivity for the sync engine.
//
// The monitor answers the synchronous "is online" query and emits
// went-online / went-offline transitions to registered observers. The
// default probe dials the cloud endpoint's host on a ticker; SetOnline
// allows manual override (and drives tests).
package netmon

import (
	"context"
	"log"
	"net"
	"net/url"
	"os"
	"sync"
	"time"
)

// Monitor watches connectivity and notifies observers on transitions.
type Monitor struct {
	probeAddr     string
	probeInterval time.Duration
	logger        *log.Logger

	mu        sync.Mutex
	online    bool
	onOnline  []func()
	onOffline []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a monitor that probes the host of endpoint (an http(s) URL).
// The monitor starts in the online state; call Start to begin probing, or
// drive it manually with SetOnline. If logger is nil, a default stderr
// logger is used.
func New(endpoint string, probeInterval time.Duration, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	if probeInterval <= 0 {
		probeInterval = 15 * time.Second
	}

	addr := ""
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		addr = u.Host
		if u.Port() == "" {
			if u.Scheme == "https" {
				addr += ":443"
			} else {
				addr += ":80"
			}
		}
	}

	return &Monitor{
		probeAddr:     addr,
		probeInterval: probeInterval,
		logger:        logger,
		online:        true,
	}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers an observer for went-online transitions.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnOffline registers an observer for went-offline transitions.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

// SetOnline records the connectivity state and, on a transition, invokes
// the matching observers.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var observers []func()
	if online {
		observers = append(observers, m.onOnline...)
	} else {
		observers = append(observers, m.onOffline...)
	}
	m.mu.Unlock()

	if online {
		m.logger.Printf("Connectivity restored")
	} else {
		m.logger.Printf("Connectivity lost")
	}
	for _, fn := range observers {
		fn()
	}
}

// Start begins periodic probing. Probing stops when Stop is called.
// No-op when the monitor has no probe address.
func (m *Monitor) Start() {
	if m.probeAddr == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop halts probing and waits for the probe loop to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	// Establish the initial state promptly rather than waiting one tick.
	m.SetOnline(m.probe())

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.probe())
		}
	}
}

func (m *Monitor) probe() bool {
	conn, err := net.DialTimeout("tcp", m.probeAddr, 3*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
