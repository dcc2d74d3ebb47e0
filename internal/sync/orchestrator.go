// Package sync ties the local store, the cloud adapter, the merge
// algorithm, and the debounced push scheduler into the state machine that
// keeps one user's profile consistent across devices.
package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/BurhanCantCode/TasteMaker/internal/cloud"
	"github.com/BurhanCantCode/TasteMaker/internal/profile"
	"github.com/BurhanCantCode/TasteMaker/internal/store"
)

// Subscription is a live cloud watch that can be torn down.
type Subscription interface {
	Stop()
}

// Cloud is the document-store surface the orchestrator drives. It matches
// *cloud.Client; tests substitute a fake.
type Cloud interface {
	Push(ctx context.Context, uid string, p *profile.Profile, session *profile.CardSession, summary *profile.CachedSummary, phone string, writeTime int64) error
	Pull(ctx context.Context, uid string) (*profile.CloudDocument, error)
	Delete(ctx context.Context, uid string)
	Subscribe(ctx context.Context, uid string, onChange cloud.ChangeHandler) Subscription
}

type clientCloud struct {
	*cloud.Client
}

func (c clientCloud) Subscribe(ctx context.Context, uid string, onChange cloud.ChangeHandler) Subscription {
	return c.Client.Subscribe(ctx, uid, onChange)
}

// WrapClient adapts a *cloud.Client to the Cloud interface.
func WrapClient(c *cloud.Client) Cloud {
	return clientCloud{c}
}

// Connectivity reports network reachability. *netmon.Monitor satisfies it.
type Connectivity interface {
	Online() bool
	OnOnline(func())
	OnOffline(func())
}

// PendingMerge is a profile (plus optional session/summary) produced by
// reconciliation or a live remote update, staged for the rest of the
// application to adopt exactly once via TakePendingMerge.
type PendingMerge struct {
	Profile *profile.Profile
	Session *profile.CardSession
	Summary *profile.CachedSummary
}

// Config controls orchestrator timing.
type Config struct {
	// DebounceDelay is the quiet period before an outbound push fires.
	DebounceDelay time.Duration
	// SyncedFlipSlack is added to DebounceDelay before the status is
	// optimistically flipped from syncing to synced. This is a fixed-delay
	// approximation, not an acknowledgment protocol.
	SyncedFlipSlack time.Duration
}

// DefaultConfig returns the standard timing values.
func DefaultConfig() Config {
	return Config{
		DebounceDelay:   2 * time.Second,
		SyncedFlipSlack: 500 * time.Millisecond,
	}
}

// Orchestrator is the sync state machine. It reconciles local and cloud
// state on sign-in, maintains the live subscription, suppresses echoes of
// its own writes, and schedules debounced outbound pushes.
type Orchestrator struct {
	store  *store.Store
	cloud  Cloud
	net    Connectivity
	cfg    Config
	logger *log.Logger

	debounce *DebouncedPush

	mu                     stdsync.Mutex
	status                 Status
	uid                    string
	phone                  string
	lastProcessedWriteTime int64
	pending                *PendingMerge
	sub                    Subscription
	syncGen                uint64

	statusObservers    []func(Status)
	reconnectObservers []func()
	remoteObservers    []func()
}

// New creates an orchestrator. The initial status is offline when the
// connectivity monitor reports no network, idle otherwise. If logger is
// nil, a default stderr logger is used.
func New(st *store.Store, cl Cloud, net Connectivity, cfg Config, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultConfig().DebounceDelay
	}
	if cfg.SyncedFlipSlack <= 0 {
		cfg.SyncedFlipSlack = DefaultConfig().SyncedFlipSlack
	}

	o := &Orchestrator{
		store:  st,
		cloud:  cl,
		net:    net,
		cfg:    cfg,
		logger: logger,
		status: StatusIdle,
	}
	if !net.Online() {
		o.status = StatusOffline
	}
	o.debounce = NewDebouncedPush(cfg.DebounceDelay, o.sendPush)

	net.OnOffline(func() {
		o.setStatus(StatusOffline)
	})
	net.OnOnline(func() {
		o.mu.Lock()
		wasOffline := o.status == StatusOffline
		observers := append([]func(){}, o.reconnectObservers...)
		o.mu.Unlock()
		if !wasOffline {
			return
		}
		o.setStatus(StatusIdle)
		for _, fn := range observers {
			fn()
		}
	})
	return o
}

// Status returns the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// OnStatusChange registers an observer invoked whenever the status changes.
func (o *Orchestrator) OnStatusChange(fn func(Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statusObservers = append(o.statusObservers, fn)
}

// OnReconnect registers an observer invoked when connectivity returns after
// an offline period. The profile holder uses this to re-push local state
// edited while disconnected.
func (o *Orchestrator) OnReconnect(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reconnectObservers = append(o.reconnectObservers, fn)
}

// OnRemoteUpdate registers an observer invoked after a foreign-device
// change has been merged and staged as a pending merge.
func (o *Orchestrator) OnRemoteUpdate(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remoteObservers = append(o.remoteObservers, fn)
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	if o.status == s {
		o.mu.Unlock()
		return
	}
	o.status = s
	observers := append([]func(Status){}, o.statusObservers...)
	o.mu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
}

// HandleSignIn reconciles local and cloud state for the given identity and
// then starts the live subscription. Reconciliation runs once per
// newly-observed uid; a repeat call with the same uid is a no-op.
//
// A reconciliation failure is non-fatal: the status is set to error, the
// app proceeds on local data, and the subscription is still established so
// later remote writes flow in.
func (o *Orchestrator) HandleSignIn(ctx context.Context, uid, phone string) error {
	if uid == "" {
		return nil
	}

	o.mu.Lock()
	if o.uid == uid {
		o.mu.Unlock()
		return nil
	}
	prevSub := o.sub
	o.sub = nil
	o.uid = uid
	o.phone = phone
	o.lastProcessedWriteTime = 0
	o.pending = nil
	o.mu.Unlock()

	if prevSub != nil {
		prevSub.Stop()
	}

	o.setStatus(StatusSyncing)
	err := o.reconcile(ctx, uid, phone)
	if err != nil {
		o.logger.Printf("Reconciliation failed for %s: %v", uid, err)
		o.setStatus(StatusError)
	} else {
		o.setStatus(StatusSynced)
	}

	// The subscription starts only after reconciliation has settled, so a
	// stale pre-merge document cannot trigger a spurious second merge.
	sub := o.cloud.Subscribe(context.Background(), uid, o.handleChange)
	o.mu.Lock()
	o.sub = sub
	o.mu.Unlock()
	return err
}

// HandleSignOut tears down the subscription and resets per-identity state.
func (o *Orchestrator) HandleSignOut() {
	o.mu.Lock()
	sub := o.sub
	o.sub = nil
	o.uid = ""
	o.phone = ""
	o.lastProcessedWriteTime = 0
	o.pending = nil
	o.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	o.debounce.Stop()
	o.setStatus(StatusIdle)
}

func (o *Orchestrator) reconcile(ctx context.Context, uid, phone string) error {
	local := o.store.LoadProfile()
	if local == nil {
		local = o.store.CreateEmptyProfile()
	}

	doc, err := o.cloud.Pull(ctx, uid)
	if err != nil {
		return fmt.Errorf("load cloud profile: %w", err)
	}
	var remote *profile.Profile
	if doc != nil {
		remote = doc.Profile()
	}

	localHas := local.HasData()
	remoteHas := remote != nil && remote.HasData()

	switch {
	case !localHas && !remoteHas:
		return nil

	case localHas && !remoteHas:
		session := o.store.LoadCardSession()
		summary := o.store.LoadSummary()
		now := profile.NowMillis()
		o.mu.Lock()
		o.lastProcessedWriteTime = now
		o.mu.Unlock()
		if err := o.cloud.Push(ctx, uid, local, session, summary, phone, now); err != nil {
			o.logger.Printf("Initial push failed for %s: %v", uid, err)
		}
		return nil

	case !localHas && remoteHas:
		if err := o.store.SaveProfile(remote); err != nil {
			return fmt.Errorf("adopt cloud profile: %w", err)
		}
		if doc.CardSession != nil {
			if err := o.store.SaveCardSession(doc.CardSession); err != nil {
				return fmt.Errorf("adopt cloud session: %w", err)
			}
		}
		if doc.CachedSummary != nil {
			if err := o.store.SaveSummary(doc.CachedSummary); err != nil {
				return fmt.Errorf("adopt cloud summary: %w", err)
			}
		}
		o.mu.Lock()
		if doc.LastModifiedAt > o.lastProcessedWriteTime {
			o.lastProcessedWriteTime = doc.LastModifiedAt
		}
		o.pending = &PendingMerge{Profile: remote, Session: doc.CardSession, Summary: doc.CachedSummary}
		o.mu.Unlock()
		return nil

	default:
		merged := profile.Merge(local, remote)
		if err := o.store.SaveProfile(merged); err != nil {
			return fmt.Errorf("save merged profile: %w", err)
		}
		// The cloud session/summary reflect the most recent cross-device
		// state, so they win when both sides have one.
		session := doc.CardSession
		if session == nil {
			session = o.store.LoadCardSession()
		}
		summary := doc.CachedSummary
		if summary == nil {
			summary = o.store.LoadSummary()
		}
		now := profile.NowMillis()
		o.mu.Lock()
		o.lastProcessedWriteTime = now
		o.pending = &PendingMerge{Profile: merged, Session: session, Summary: summary}
		o.mu.Unlock()
		if err := o.cloud.Push(ctx, uid, merged, session, summary, phone, now); err != nil {
			o.logger.Printf("Merged push failed for %s: %v", uid, err)
		}
		return nil
	}
}

// handleChange is the live subscription callback.
func (o *Orchestrator) handleChange(doc *profile.CloudDocument, pendingWrite bool) {
	if pendingWrite {
		// Unconfirmed local write still in flight; the confirmed version
		// will be re-delivered.
		return
	}
	if doc == nil {
		return
	}

	o.mu.Lock()
	if doc.LastModifiedAt != 0 && doc.LastModifiedAt <= o.lastProcessedWriteTime {
		// Stale, or the confirmed echo of our own write.
		o.mu.Unlock()
		return
	}
	if doc.LastModifiedAt != 0 {
		o.lastProcessedWriteTime = doc.LastModifiedAt
	}
	o.mu.Unlock()

	incoming := doc.Profile()
	local := o.store.LoadProfile()
	if local == nil {
		local = profile.NewEmptyProfile()
	}
	lf, ll := local.Counts()
	rf, rl := incoming.Counts()
	if lf == rf && ll == rl {
		return
	}

	merged := profile.Merge(local, incoming)
	if err := o.store.SaveProfile(merged); err != nil {
		o.logger.Printf("Saving remotely merged profile failed: %v", err)
		return
	}
	o.logger.Printf("Merged remote update: %d facts, %d likes", rf, rl)

	o.mu.Lock()
	o.pending = &PendingMerge{Profile: merged, Session: doc.CardSession, Summary: doc.CachedSummary}
	observers := append([]func(){}, o.remoteObservers...)
	o.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// TriggerSync schedules a debounced push of the given state. The echo
// guard time is advanced before the push is scheduled; reversing that
// order would let the confirmation of this very write come back through
// the subscription and be merged a second time.
func (o *Orchestrator) TriggerSync(p *profile.Profile, session *profile.CardSession, summary *profile.CachedSummary) {
	o.mu.Lock()
	if o.uid == "" {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	if !o.net.Online() {
		o.setStatus(StatusOffline)
		return
	}

	now := profile.NowMillis()
	o.mu.Lock()
	o.lastProcessedWriteTime = now
	o.syncGen++
	gen := o.syncGen
	o.mu.Unlock()

	o.setStatus(StatusSyncing)
	o.debounce.Trigger(Payload{Profile: p, Session: session, Summary: summary, WriteTime: now})

	time.AfterFunc(o.cfg.DebounceDelay+o.cfg.SyncedFlipSlack, func() {
		o.mu.Lock()
		flip := o.syncGen == gen && o.status == StatusSyncing
		o.mu.Unlock()
		if flip {
			o.setStatus(StatusSynced)
		}
	})
}

func (o *Orchestrator) sendPush(p Payload) {
	o.mu.Lock()
	uid := o.uid
	phone := o.phone
	o.mu.Unlock()
	if uid == "" {
		return
	}
	if err := o.cloud.Push(context.Background(), uid, p.Profile, p.Session, p.Summary, phone, p.WriteTime); err != nil {
		// The local store already holds the superseding write; the next
		// mutation re-triggers a push.
		o.logger.Printf("Push failed for %s: %v", uid, err)
		o.setStatus(StatusError)
	}
}

// PendingMergeWaiting reports whether a merge result is staged, without
// consuming it.
func (o *Orchestrator) PendingMergeWaiting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != nil
}

// TakePendingMerge returns the staged merge result and clears the slot, or
// nil when nothing is staged. The slot holds at most one value; a newer
// merge replaces an unconsumed older one.
func (o *Orchestrator) TakePendingMerge() *PendingMerge {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.pending
	o.pending = nil
	return p
}

// Reset clears all local records and deletes the cloud document. The cloud
// delete is best-effort; a failure there does not undo the local reset.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if err := o.store.ClearAll(); err != nil {
		return fmt.Errorf("clear local store: %w", err)
	}
	o.mu.Lock()
	uid := o.uid
	o.pending = nil
	o.mu.Unlock()
	if uid != "" {
		o.cloud.Delete(ctx, uid)
	}
	return nil
}

// Flush sends any debounced payload immediately. Called at daemon
// shutdown so a mutation ingested moments before the signal still reaches
// the cloud.
func (o *Orchestrator) Flush() {
	o.debounce.Flush()
}

// Close cancels any pending push and tears down the subscription.
func (o *Orchestrator) Close() {
	o.debounce.Stop()
	o.mu.Lock()
	sub := o.sub
	o.sub = nil
	o.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}
}
