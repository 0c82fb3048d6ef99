package session

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"ai-voice-gateway/internal/models"
)

// NewID returns a random session id.
func NewID() string {
	return gonanoid.Must()
}

// Session is one client connection's conversation. The turn sequence only
// grows; turns are never reordered or modified.
type Session struct {
	id        string
	createdAt time.Time
	lifecycle *Lifecycle

	mu           sync.RWMutex
	turns        []models.Turn
	lastActivity time.Time
}

// New creates a session in IDLE state. onTransition is passed to the
// session's Lifecycle.
func New(id string, onTransition func(from, to State)) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		createdAt:    now,
		lifecycle:    NewLifecycle(onTransition),
		lastActivity: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Lifecycle returns the session's state holder.
func (s *Session) Lifecycle() *Lifecycle { return s.lifecycle }

// State returns the current state.
func (s *Session) State() State { return s.lifecycle.State() }

// AppendTurn appends a turn and returns it with its index.
func (s *Session) AppendTurn(role models.Role, text string) (models.Turn, int) {
	turn := models.Turn{Role: role, Text: text, CreatedAt: time.Now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	return turn, len(s.turns) - 1
}

// Turns returns a copy of the turn sequence.
func (s *Session) Turns() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Turn(nil), s.turns...)
}

// TurnCount returns the number of turns.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Touch records inbound activity.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the last inbound activity.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Info is a read-only snapshot of a session.
type Info struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	Turns        int       `json:"turns"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Snapshot returns the session's current Info.
func (s *Session) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:           s.id,
		State:        s.lifecycle.State(),
		Turns:        len(s.turns),
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}
