// Package session implements the per-connection conversation engine: session
// data, the state transition table and the state machine that sequences
// capture, transcription, retrieval and generation.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateIdle - waiting for the next inbound action.
	StateIdle State = iota
	// StateAwaitingAudio - capture device held, no speech content yet.
	StateAwaitingAudio
	// StateTranscribing - speech content is arriving.
	StateTranscribing
	// StateAugmenting - retrieving context for the prompt.
	StateAugmenting
	// StateGenerating - streaming the assistant reply.
	StateGenerating
	// StateClosed - terminal. Reachable from every state.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingAudio:
		return "AWAITING_AUDIO"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateAugmenting:
		return "AUGMENTING"
	case StateGenerating:
		return "GENERATING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText renders the state name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal returns true if the state is CLOSED.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// ErrInvalidTransition is returned for a transition missing from the table.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists the allowed targets of every non-terminal state. Closed
// is handled by Lifecycle.Close and is always allowed.
//
//	IDLE → AWAITING_AUDIO → TRANSCRIBING → AUGMENTING → GENERATING → IDLE
//	IDLE → AUGMENTING (text path)
//	AWAITING_AUDIO / TRANSCRIBING / AUGMENTING → IDLE (no speech, capture error, cancellation)
var transitions = map[State][]State{
	StateIdle:          {StateAwaitingAudio, StateAugmenting},
	StateAwaitingAudio: {StateTranscribing, StateIdle},
	StateTranscribing:  {StateAugmenting, StateIdle},
	StateAugmenting:    {StateGenerating, StateIdle},
	StateGenerating:    {StateIdle},
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateClosed {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Lifecycle holds a session's current state and enforces the transition
// table. Thread-safe for concurrent access: the state machine writes, the
// registry and HTTP snapshots read.
type Lifecycle struct {
	mu           sync.RWMutex
	state        State
	onTransition func(from, to State)
}

// NewLifecycle creates a lifecycle in IDLE state. onTransition, when non-nil,
// is called after every successful transition, outside the lock.
func NewLifecycle(onTransition func(from, to State)) *Lifecycle {
	return &Lifecycle{state: StateIdle, onTransition: onTransition}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsClosed returns true once the session reached CLOSED.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Transition moves to the given state. Transitioning to the current state is
// a no-op.
func (l *Lifecycle) Transition(to State) error {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	l.state = to
	l.mu.Unlock()

	if l.onTransition != nil {
		l.onTransition(from, to)
	}
	return nil
}

// Close transitions to CLOSED from any state. Returns false if already closed.
func (l *Lifecycle) Close() bool {
	l.mu.Lock()
	from := l.state
	if from.IsTerminal() {
		l.mu.Unlock()
		return false
	}
	l.state = StateClosed
	l.mu.Unlock()

	if l.onTransition != nil {
		l.onTransition(from, StateClosed)
	}
	return true
}
