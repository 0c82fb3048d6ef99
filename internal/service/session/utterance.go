package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// UtteranceState is the lifecycle state of one voice interaction.
type UtteranceState int

const (
	// UtteranceOpen - capture running, partials and finals may be emitted.
	UtteranceOpen UtteranceState = iota
	// UtteranceCommitted - the user turn was appended.
	UtteranceCommitted
	// UtteranceDropped - ended without a turn: no speech, stop phrase, error
	// or cancellation.
	UtteranceDropped
)

func (s UtteranceState) String() string {
	switch s {
	case UtteranceOpen:
		return "OPEN"
	case UtteranceCommitted:
		return "COMMITTED"
	case UtteranceDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

var (
	ErrUtteranceEnded   = errors.New("utterance already ended")
	ErrAlreadyCommitted = errors.New("utterance already committed")
)

// Utterance guards a voice interaction so that it yields at most one user
// turn.
//
//	OPEN → COMMITTED
//	  └──→ DROPPED
type Utterance struct {
	mu    sync.Mutex
	id    string
	state UtteranceState
}

// NewUtterance creates an utterance in OPEN state.
func NewUtterance(id string) *Utterance {
	return &Utterance{id: id}
}

// ID returns the utterance id.
func (u *Utterance) ID() string { return u.id }

// State returns the current state.
func (u *Utterance) State() UtteranceState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// CanEmit reports whether transcript events may still be forwarded.
func (u *Utterance) CanEmit() bool {
	return u.State() == UtteranceOpen
}

// Commit records that the user turn was appended. Only the first call succeeds.
func (u *Utterance) Commit() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch u.state {
	case UtteranceOpen:
		u.state = UtteranceCommitted
		return nil
	case UtteranceCommitted:
		return ErrAlreadyCommitted
	default:
		return ErrUtteranceEnded
	}
}

// Drop abandons the utterance without a turn. Returns false if it had
// already ended.
func (u *Utterance) Drop() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != UtteranceOpen {
		return false
	}
	u.state = UtteranceDropped
	return true
}

// UtteranceIDs generates utterance ids unique within the process.
type UtteranceIDs struct {
	counter uint64
}

// Next returns "<sessionID>-utt-<n>".
func (g *UtteranceIDs) Next(sessionID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-utt-%d", sessionID, n)
}
