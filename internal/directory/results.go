package directory

import (
	"sync"

	"github.com/google/uuid"
)

// Sequencer hands out increasing tokens so that a response can be checked
// against the most recent request before it is applied.
type Sequencer struct {
	mu     sync.Mutex
	latest uint64
}

// Begin starts a new request and returns its token.
func (s *Sequencer) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

// IsCurrent reports whether token belongs to the latest request.
func (s *Sequencer) IsCurrent(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token == s.latest
}

// Results accumulates pages of one search. Page 1 replaces what was held,
// later pages append candidates not already present, and pages answering
// an outdated request are dropped.
type Results struct {
	seq Sequencer

	mu         sync.Mutex
	candidates []Candidate
	seen       map[uuid.UUID]bool
	page       int
	hasMore    bool
	nextCursor string
}

func NewResults() *Results {
	return &Results{seen: make(map[uuid.UUID]bool)}
}

// Begin marks the start of a request and returns the token to pass to Apply.
func (r *Results) Begin() uint64 {
	return r.seq.Begin()
}

// Apply merges page into the results. It returns false when the page was
// stale and ignored.
func (r *Results) Apply(token uint64, page *CandidatePage) bool {
	if page == nil || !r.seq.IsCurrent(token) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if page.Page <= 1 {
		r.candidates = nil
		r.seen = make(map[uuid.UUID]bool, len(page.Candidates))
	}
	for _, c := range page.Candidates {
		if r.seen[c.UserID] {
			continue
		}
		r.seen[c.UserID] = true
		r.candidates = append(r.candidates, c)
	}
	r.page = page.Page
	r.hasMore = page.HasMore
	r.nextCursor = page.NextCursor
	return true
}

// Candidates returns a copy of the accumulated candidates.
func (r *Results) Candidates() []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

func (r *Results) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

func (r *Results) NextCursor() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextCursor
}
