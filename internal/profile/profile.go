// Package profile defines the user profile records synchronized between the
// local store and the cloud document, plus the conflict-free merge that
// combines two profiles.
//
// The profile is CRDT-friendly by construction: facts and likes are
// append-mostly collections keyed by a stable ID, each entry carrying a
// client-assigned timestamp used for last-write-wins resolution. Scalar
// fields resolve with simple presence/length rules.
package profile

import (
	"fmt"
	"time"
)

// Fact records an answered discovery question.
// Positive is a client-computed sentiment tag on the answer, fixed at
// creation. Timestamp is the logical creation time in epoch milliseconds
// and is used only for merge tie-breaking.
type Fact struct {
	QuestionID string `json:"questionId"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Positive   bool   `json:"positive"`
	Timestamp  int64  `json:"timestamp"`
}

// Like records a rating of a recommended item. Rating is an open,
// category-specific vocabulary and is not merge-sensitive beyond identity.
type Like struct {
	ItemID    string `json:"itemId"`
	Item      string `json:"item"`
	Category  string `json:"category"`
	Rating    string `json:"rating"`
	Timestamp int64  `json:"timestamp"`
}

// Location is the user's optional location for localized recommendations.
type Location struct {
	City    string `json:"city"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
}

// Profile is the durable user record: the accumulated fact/like collections
// plus optional free text and location.
//
// Invariant: QuestionID values are unique within Facts and ItemID values are
// unique within Likes. Both sequences keep insertion order for display, but
// the merge treats them as sets keyed by those IDs.
type Profile struct {
	Facts        []Fact    `json:"facts"`
	Likes        []Like    `json:"likes"`
	InitialFacts string    `json:"initialFacts,omitempty"`
	UserLocation *Location `json:"userLocation,omitempty"`
}

// NewEmptyProfile returns a profile with no facts, likes, or scalar fields.
// This is the state a fresh device starts from and the state a reset
// returns to.
func NewEmptyProfile() *Profile {
	return &Profile{
		Facts: []Fact{},
		Likes: []Like{},
	}
}

// HasData reports whether the profile carries any taste signal at all.
// A profile with no facts, no likes, and no initial free text is treated
// as empty for reconciliation purposes.
func (p *Profile) HasData() bool {
	if p == nil {
		return false
	}
	return len(p.Facts) > 0 || len(p.Likes) > 0 || p.InitialFacts != ""
}

// Counts returns the fact and like counts.
func (p *Profile) Counts() (facts, likes int) {
	if p == nil {
		return 0, 0
	}
	return len(p.Facts), len(p.Likes)
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := &Profile{
		Facts:        append([]Fact(nil), p.Facts...),
		Likes:        append([]Like(nil), p.Likes...),
		InitialFacts: p.InitialFacts,
	}
	if p.UserLocation != nil {
		loc := *p.UserLocation
		out.UserLocation = &loc
	}
	if out.Facts == nil {
		out.Facts = []Fact{}
	}
	if out.Likes == nil {
		out.Likes = []Like{}
	}
	return out
}

// AddFact appends a fact, replacing any existing entry with the same
// QuestionID to preserve the uniqueness invariant. A zero timestamp is
// stamped with the current time.
func (p *Profile) AddFact(f Fact) {
	if f.Timestamp == 0 {
		f.Timestamp = NowMillis()
	}
	for i, existing := range p.Facts {
		if existing.QuestionID == f.QuestionID {
			p.Facts[i] = f
			return
		}
	}
	p.Facts = append(p.Facts, f)
}

// AddLike appends a like, replacing any existing entry with the same ItemID.
// A zero timestamp is stamped with the current time.
func (p *Profile) AddLike(l Like) {
	if l.Timestamp == 0 {
		l.Timestamp = NowMillis()
	}
	for i, existing := range p.Likes {
		if existing.ItemID == l.ItemID {
			p.Likes[i] = l
			return
		}
	}
	p.Likes = append(p.Likes, l)
}

// Validate checks the per-key uniqueness invariants.
func (p *Profile) Validate() error {
	seenQ := make(map[string]struct{}, len(p.Facts))
	for _, f := range p.Facts {
		if f.QuestionID == "" {
			return fmt.Errorf("fact with empty questionId")
		}
		if _, dup := seenQ[f.QuestionID]; dup {
			return fmt.Errorf("duplicate fact questionId %q", f.QuestionID)
		}
		seenQ[f.QuestionID] = struct{}{}
	}
	seenI := make(map[string]struct{}, len(p.Likes))
	for _, l := range p.Likes {
		if l.ItemID == "" {
			return fmt.Errorf("like with empty itemId")
		}
		if _, dup := seenI[l.ItemID]; dup {
			return fmt.Errorf("duplicate like itemId %q", l.ItemID)
		}
		seenI[l.ItemID] = struct{}{}
	}
	return nil
}

// CardSession is the ephemeral cross-device cursor into the current card
// batch. It is not conflict-merged; the last writer by delivery order wins.
type CardSession struct {
	Mode          string `json:"mode"` // "ask" or "result"
	BatchProgress int    `json:"batchProgress"`
	BatchSize     int    `json:"batchSize"`
}

// CachedSummary is a memoized natural-language summary of the profile.
// It is valid only while the recorded counts match the live profile;
// otherwise it is stale and the summarizer must regenerate it.
type CachedSummary struct {
	Text       string `json:"text"`
	FactsCount int    `json:"factsCount"`
	LikesCount int    `json:"likesCount"`
}

// Fresh reports whether the summary still matches the given profile.
func (s *CachedSummary) Fresh(p *Profile) bool {
	if s == nil {
		return false
	}
	facts, likes := p.Counts()
	return s.FactsCount == facts && s.LikesCount == likes
}

// CloudDocument is the server-side projection of a user's state: the
// profile fields plus the optional session/summary, the logical write time
// stamped by the writer (not server time), and the optional phone number.
type CloudDocument struct {
	Facts          []Fact         `json:"facts"`
	Likes          []Like         `json:"likes"`
	InitialFacts   string         `json:"initialFacts,omitempty"`
	UserLocation   *Location      `json:"userLocation,omitempty"`
	CardSession    *CardSession   `json:"cardSession,omitempty"`
	CachedSummary  *CachedSummary `json:"cachedSummary,omitempty"`
	LastModifiedAt int64          `json:"lastModifiedAt"`
	PhoneNumber    string         `json:"phoneNumber,omitempty"`
}

// Profile extracts the profile fields from the document.
func (d *CloudDocument) Profile() *Profile {
	p := &Profile{
		Facts:        d.Facts,
		Likes:        d.Likes,
		InitialFacts: d.InitialFacts,
		UserLocation: d.UserLocation,
	}
	if p.Facts == nil {
		p.Facts = []Fact{}
	}
	if p.Likes == nil {
		p.Likes = []Like{}
	}
	return p
}

// NowMillis returns the current logical write time in epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
