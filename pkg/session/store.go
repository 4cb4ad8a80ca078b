// Package session keeps per-session conversation state in memory. State
// does not survive a restart; durable persistence is an explicit
// non-goal of this backend.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlo-ai/parlo/pkg/chat"
)

// DefaultMaxTurns caps a session's retained history.
const DefaultMaxTurns = 40

// Store holds all live sessions. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	maxTurns int
}

// NewStore creates an empty store. maxTurns <= 0 selects
// DefaultMaxTurns.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
	}
}

// GetOrCreate returns the session with the given id, creating it when
// absent. An empty id creates a session under a fresh random id.
func (s *Store) GetOrCreate(id, userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := &Session{
		ID:       id,
		UserID:   userID,
		created:  time.Now(),
		maxTurns: s.maxTurns,
		turn:     make(chan struct{}, 1),
	}
	s.sessions[id] = sess
	return sess
}

// Reset drops the session with the given id, reporting whether it
// existed.
func (s *Store) Reset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Session is one conversation's mutable state. History access is
// internally locked, but only the turn holding BeginTurn may mutate it:
// two turns of one session never run concurrently.
type Session struct {
	ID     string
	UserID string

	created time.Time

	mu       sync.Mutex
	history  []chat.Message
	maxTurns int

	turn chan struct{}
}

// BeginTurn acquires the session's turn slot, blocking while another
// turn is running. It fails only when ctx is done first.
func (s *Session) BeginTurn(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EndTurn releases the turn slot acquired by BeginTurn.
func (s *Session) EndTurn() {
	<-s.turn
}

// History returns a copy of the retained conversation.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Append adds messages to the history and trims to the retention cap.
func (s *Session) Append(msgs ...chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	s.history = trimHistory(s.history, s.maxTurns)
}

// TrimHistory applies an explicit cap, lower or higher than the
// session's own.
func (s *Session) TrimHistory(maxTurns int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = trimHistory(s.history, maxTurns)
}

// trimHistory drops the oldest messages once the cap is exceeded,
// keeping the remainder in order. The cut never leaves a tool message in
// front: a tool message is only meaningful after the assistant message
// that requested it, so the cut advances past leading tool messages even
// when that trims below the cap.
func trimHistory(history []chat.Message, maxTurns int) []chat.Message {
	if maxTurns <= 0 || len(history) <= maxTurns {
		return history
	}
	cut := len(history) - maxTurns
	for cut < len(history) && history[cut].Role == chat.RoleTool {
		cut++
	}
	return history[cut:]
}
