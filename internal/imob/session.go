package imob

import (
	"errors"
	"sync"
	"time"
)

// Sentinel errors surfaced to the operator before any remote call is made.
var (
	ErrEmptyInput       = errors.New("no data pasted")
	ErrMissingSelectors = errors.New("both Emp and Produto must be selected")
	ErrNoValidKeys      = errors.New("no valid SEQMOVIMENTAÇÃO values found")
	ErrNothingToInsert  = errors.New("no new rows pending insertion")
	ErrSessionBusy      = errors.New("a process or insert cycle is already running for this session")
	ErrSessionNotFound  = errors.New("session not found")
)

// Session owns the state of one operator's import flow: the pending insert
// buffer, the last run's counts, and the single-flight guard.
//
// At most one process or insert cycle may run per session at a time. The
// guard enforces this explicitly rather than relying on callers to
// serialize their requests.
type Session struct {
	ID string

	mu       sync.Mutex
	busy     bool
	pending  []Record
	summary  Summary
	created  time.Time
	lastUsed time.Time
}

// begin acquires the single-flight guard.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrSessionBusy
	}
	s.busy = true
	s.lastUsed = time.Now()
	return nil
}

// end releases the single-flight guard.
func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Pending returns the number of rows awaiting insertion.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// idle reports whether the session can be pruned: not mid-cycle and unused
// for at least ttl.
func (s *Session) idle(ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.busy && time.Since(s.lastUsed) > ttl
}
