// Package memory keeps a bounded, per-user buffer of recent conversation
// turns.
//
// Sessions live in process memory only; a restart discards them. That is a
// documented limitation of the pipeline, not a bug; durable chat history is
// explicitly out of scope.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsolve/chatbot/internal/compose"
)

// Turn is one query/answer exchange. Immutable once created.
type Turn struct {
	ID        uuid.UUID
	Query     string
	Answer    string
	Sources   []compose.Source
	Timestamp time.Time
}

// session is one user's bounded turn history. Each session has its own lock:
// concurrent requests from the same user serialize on it, requests from
// different users never contend.
type session struct {
	mu    sync.Mutex
	turns []Turn
}

// Store manages per-user sessions keyed by user identity.
//
// Append ordering for concurrent same-user queries is completion order: the
// per-session lock serializes appends in the order the callers reach it,
// which is the order their generations completed, not the order the queries
// arrived. See the concurrency test for the pinned behavior.
type Store struct {
	window int

	mu       sync.RWMutex // guards the sessions map, not the sessions
	sessions map[string]*session
}

// NewStore creates a Store bounding each session to window turns.
// window must be positive; it is validated by config before reaching here,
// so a non-positive value is a programming error.
func NewStore(window int) *Store {
	if window <= 0 {
		panic("memory: window must be positive")
	}
	return &Store{
		window:   window,
		sessions: make(map[string]*session),
	}
}

// Window returns the configured per-session turn bound.
func (s *Store) Window() int {
	return s.window
}

// Append records a completed turn for user, evicting the oldest turn when
// the window would overflow.
func (s *Store) Append(user string, turn Turn) {
	sess := s.session(user)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.turns = append(sess.turns, turn)
	if len(sess.turns) > s.window {
		// FIFO eviction; copy to release the evicted turn's backing memory.
		evicted := len(sess.turns) - s.window
		kept := make([]Turn, s.window)
		copy(kept, sess.turns[evicted:])
		sess.turns = kept
	}
}

// Recent returns up to maxTurns most recent turns for user, oldest first.
// The returned slice is a copy; callers cannot mutate stored history.
func (s *Store) Recent(user string, maxTurns int) []Turn {
	if maxTurns <= 0 {
		return nil
	}

	s.mu.RLock()
	sess, ok := s.sessions[user]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	n := len(sess.turns)
	if n == 0 {
		return nil
	}
	if maxTurns < n {
		n = maxTurns
	}

	out := make([]Turn, n)
	copy(out, sess.turns[len(sess.turns)-n:])
	for i := range out {
		// The Turn copy still shares the Sources backing array; clone it so
		// no caller write can reach stored history.
		out[i].Sources = append([]compose.Source(nil), out[i].Sources...)
	}
	return out
}

// Clear discards user's session entirely.
func (s *Store) Clear(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, user)
}

// Len reports the number of turns currently held for user.
func (s *Store) Len(user string) int {
	s.mu.RLock()
	sess, ok := s.sessions[user]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.turns)
}

// session returns the user's session, creating it on first query.
func (s *Store) session(user string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[user]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[user]; ok {
		return sess
	}
	sess = &session{}
	s.sessions[user] = sess
	return sess
}
