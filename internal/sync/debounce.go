package sync

import (
	stdsync "sync"
	"time"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
)

// Payload is one outbound cloud write: the full profile plus whatever
// session/summary/write-time the caller wants alongside it.
type Payload struct {
	Profile   *profile.Profile
	Session   *profile.CardSession
	Summary   *profile.CachedSummary
	WriteTime int64
}

// DebouncedPush coalesces rapid triggers into a single send after a quiet
// period. Each Trigger cancels any pending send and schedules a new one
// carrying only the latest payload; superseded payloads are dropped, never
// queued or merged. The local store already holds every superseding write,
// so dropping intermediates loses nothing.
type DebouncedPush struct {
	delay time.Duration
	send  func(Payload)

	mu      stdsync.Mutex
	timer   *time.Timer
	pending *Payload
	seq     uint64
}

// NewDebouncedPush returns a scheduler that invokes send with the most
// recently triggered payload once delay has elapsed without a newer trigger.
func NewDebouncedPush(delay time.Duration, send func(Payload)) *DebouncedPush {
	return &DebouncedPush{delay: delay, send: send}
}

// Trigger schedules p, replacing any payload scheduled earlier. A timer
// that has already fired but not yet sent checks the sequence number and
// bails, so a superseded payload can never slip out.
func (d *DebouncedPush) Trigger(p Payload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = &p
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(seq)
	})
}

func (d *DebouncedPush) fire(seq uint64) {
	d.mu.Lock()
	if d.seq != seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	p := *d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	d.send(p)
}

// Flush sends a pending payload immediately instead of waiting out the
// quiet period. Used at daemon shutdown so a freshly ingested mutation is
// not lost to the local store alone.
func (d *DebouncedPush) Flush() {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	p := *d.pending
	d.pending = nil
	d.seq++
	d.mu.Unlock()
	d.send(p)
}

// Stop cancels any pending send. It does not wait for an in-flight send.
func (d *DebouncedPush) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.seq++
}
