package cloud

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
)

// changeEnvelope is the wire frame for document change notifications.
type changeEnvelope struct {
	Type     string                 `json:"type"`
	Pending  bool                   `json:"pendingWrite"`
	Document *profile.CloudDocument `json:"document"`
}

// Subscription is a long-lived watch on one user's cloud document.
// It reconnects with backoff until its context is cancelled.
type Subscription struct {
	uid     string
	client  *Client
	handler ChangeHandler
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Subscribe opens a live subscription on the user's document. Every change
// (remote or local) invokes onChange; deliveries for this client's own
// unconfirmed writes carry pending=true. The subscription runs until Stop
// is called or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, uid string, onChange ChangeHandler) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		uid:     uid,
		client:  c,
		handler: onChange,
		cancel:  cancel,
	}
	c.addSub(sub)

	sub.wg.Add(1)
	go sub.run(subCtx)

	return sub
}

// Stop tears down the subscription and waits for its read loop to exit.
func (s *Subscription) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.client.removeSub(s)
	s.wg.Wait()
}

// deliver invokes the handler unless the subscription is stopped.
func (s *Subscription) deliver(doc *profile.CloudDocument, pending bool) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.handler(doc, pending)
}

// watchURL converts the HTTP endpoint to its WebSocket form.
func (s *Subscription) watchURL() string {
	base := s.client.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/users/" + s.uid + "/watch"
}

// run maintains the WebSocket connection, reconnecting with capped
// exponential backoff.
func (s *Subscription) run(ctx context.Context) {
	defer s.wg.Done()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.client.logger.Printf("Subscription for %s dropped: %v (reconnecting in %v)", s.uid, err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// readLoop dials the watch endpoint and processes frames until the
// connection drops or the context is cancelled.
func (s *Subscription) readLoop(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if s.client.apiKey != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + s.client.apiKey},
		}
	}

	conn, _, err := websocket.Dial(ctx, s.watchURL(), opts)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.client.logger.Printf("Watching cloud document for %s", s.uid)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var env changeEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.client.logger.Printf("Ignoring malformed change frame: %v", err)
			continue
		}
		if env.Type != "change" || env.Document == nil {
			continue
		}
		if env.Document.Facts == nil {
			env.Document.Facts = []profile.Fact{}
		}
		if env.Document.Likes == nil {
			env.Document.Likes = []profile.Like{}
		}

		s.deliver(env.Document, env.Pending)
	}
}
