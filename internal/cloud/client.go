// Package cloud implements the adapter for the per-user cloud document
// store.
//
// The adapter exposes push (field-merge upsert), pull, delete, and a live
// change subscription over WebSocket. Pushes always stamp a logical write
// time chosen by the writer; the server never rewrites it. Optional fields
// are only transmitted when the caller supplies them, so a push can never
// null out a field it didn't mention.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/BurhanCantCode/TasteMaker/internal/profile"
)

// ChangeHandler receives live document changes. pending is true when the
// notification reflects this client's own unconfirmed write still in
// flight; such deliveries are re-sent with pending=false once the server
// confirms them.
type ChangeHandler func(doc *profile.CloudDocument, pending bool)

// Client talks to the profile document service.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *log.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// New creates a cloud store client for the given endpoint.
// If logger is nil, a default logger writing to stderr is used.
func New(baseURL, apiKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[cloud] ", log.LstdFlags)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		subs:    make(map[*Subscription]struct{}),
	}
}

func (c *Client) docURL(uid string) string {
	return fmt.Sprintf("%s/v1/users/%s/profile", c.baseURL, uid)
}

// Push upserts the user's cloud document by field merge.
//
// Facts, likes, and lastModifiedAt are always written; initial facts and
// location travel with the profile when set; session, summary, and phone
// number only when provided. writeTime is the logical write time in epoch
// milliseconds (0 means now).
//
// Errors surface to the caller, which owns the retry policy.
func (c *Client) Push(ctx context.Context, uid string, p *profile.Profile, session *profile.CardSession, summary *profile.CachedSummary, phone string, writeTime int64) error {
	if writeTime == 0 {
		writeTime = profile.NowMillis()
	}

	fields := map[string]any{
		"facts":          p.Facts,
		"likes":          p.Likes,
		"lastModifiedAt": writeTime,
	}
	if p.InitialFacts != "" {
		fields["initialFacts"] = p.InitialFacts
	}
	if p.UserLocation != nil {
		fields["userLocation"] = p.UserLocation
	}
	if session != nil {
		fields["cardSession"] = session
	}
	if summary != nil {
		fields["cachedSummary"] = summary
	}
	if phone != "" {
		fields["phoneNumber"] = phone
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.docURL(uid), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push rejected with status %d: %s", resp.StatusCode, msg)
	}

	c.logger.Printf("Pushed to cloud: %d facts, %d likes (writeTime=%d)", len(p.Facts), len(p.Likes), writeTime)

	// Latency compensation: a subscriber sees its own write immediately,
	// flagged pending until the server's confirmed frame arrives.
	doc := &profile.CloudDocument{
		Facts:          p.Facts,
		Likes:          p.Likes,
		InitialFacts:   p.InitialFacts,
		UserLocation:   p.UserLocation,
		CardSession:    session,
		CachedSummary:  summary,
		LastModifiedAt: writeTime,
		PhoneNumber:    phone,
	}
	c.notifyLocal(uid, doc)

	return nil
}

// Pull fetches the user's cloud document. Returns nil with no error when
// no document exists.
func (c *Client) Pull(ctx context.Context, uid string) (*profile.CloudDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.docURL(uid), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pull rejected with status %d: %s", resp.StatusCode, msg)
	}

	var doc profile.CloudDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Facts == nil {
		doc.Facts = []profile.Fact{}
	}
	if doc.Likes == nil {
		doc.Likes = []profile.Like{}
	}

	c.logger.Printf("Pulled from cloud: %d facts, %d likes", len(doc.Facts), len(doc.Likes))
	return &doc, nil
}

// Delete removes the user's cloud document. Best effort: failures are
// logged, never returned, so a local reset always proceeds.
func (c *Client) Delete(ctx context.Context, uid string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.docURL(uid), nil)
	if err != nil {
		c.logger.Printf("Failed to create delete request: %v", err)
		return
	}
	c.setHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Printf("Failed to delete cloud document: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		c.logger.Printf("Delete rejected with status %d", resp.StatusCode)
		return
	}

	c.logger.Printf("Deleted cloud document for %s", uid)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// notifyLocal delivers a pending-write echo to every live subscription for
// this uid.
func (c *Client) notifyLocal(uid string, doc *profile.CloudDocument) {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for sub := range c.subs {
		if sub.uid == uid {
			subs = append(subs, sub)
		}
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(doc, true)
	}
}

func (c *Client) addSub(sub *Subscription) {
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeSub(sub *Subscription) {
	c.mu.Lock()
	delete(c.subs, sub)
	c.mu.Unlock()
}
