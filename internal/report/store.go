package report

import (
	"sync"
	"sync/atomic"
)

// Store maps reporter IDs to their single active session. Work on one
// reporter is serialized through Do; different reporters proceed in parallel.
type Store struct {
	mu     sync.Mutex
	slots  map[string]*slot
	active atomic.Int64
}

// slot guards one reporter's session. refs counts goroutines holding or
// waiting on the slot so it can be dropped once idle and empty.
type slot struct {
	mu      sync.Mutex
	refs    int
	session *Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{slots: make(map[string]*slot)}
}

// Do runs fn with exclusive access to reporterID's slot. fn receives the
// active session, or nil, and returns the session to keep. Returning nil
// removes it.
func (s *Store) Do(reporterID string, fn func(cur *Session) *Session) {
	s.mu.Lock()
	sl, ok := s.slots[reporterID]
	if !ok {
		sl = &slot{}
		s.slots[reporterID] = sl
	}
	sl.refs++
	s.mu.Unlock()

	sl.mu.Lock()
	before := sl.session != nil
	sl.session = fn(sl.session)
	after := sl.session != nil
	sl.mu.Unlock()

	switch {
	case !before && after:
		s.active.Add(1)
	case before && !after:
		s.active.Add(-1)
	}

	s.mu.Lock()
	sl.refs--
	// With no other holders the session field is stable under s.mu.
	if sl.refs == 0 && sl.session == nil {
		delete(s.slots, reporterID)
	}
	s.mu.Unlock()
}

// Active reports whether reporterID has a session. It must not be called from
// inside Do for the same reporter.
func (s *Store) Active(reporterID string) bool {
	s.mu.Lock()
	sl, ok := s.slots[reporterID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.session != nil
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	return int(s.active.Load())
}
