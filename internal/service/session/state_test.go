package session

import (
	"errors"
	"sync"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle(nil)

	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
	if lc.IsClosed() {
		t.Error("expected IsClosed to be false")
	}
}

func TestLifecycle_VoicePath(t *testing.T) {
	lc := NewLifecycle(nil)

	path := []State{StateAwaitingAudio, StateTranscribing, StateAugmenting, StateGenerating, StateIdle}
	for _, to := range path {
		if err := lc.Transition(to); err != nil {
			t.Fatalf("transition to %v: unexpected error: %v", to, err)
		}
	}
	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
}

func TestLifecycle_TextPath(t *testing.T) {
	lc := NewLifecycle(nil)

	for _, to := range []State{StateAugmenting, StateGenerating, StateIdle} {
		if err := lc.Transition(to); err != nil {
			t.Fatalf("transition to %v: unexpected error: %v", to, err)
		}
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from []State
		to   State
	}{
		{"idle to generating", nil, StateGenerating},
		{"idle to transcribing", nil, StateTranscribing},
		{"awaiting audio to generating", []State{StateAwaitingAudio}, StateGenerating},
		{"generating to augmenting", []State{StateAugmenting, StateGenerating}, StateAugmenting},
		{"generating to awaiting audio", []State{StateAugmenting, StateGenerating}, StateAwaitingAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle(nil)
			for _, s := range tt.from {
				if err := lc.Transition(s); err != nil {
					t.Fatalf("setup transition to %v: %v", s, err)
				}
			}
			before := lc.State()
			err := lc.Transition(tt.to)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if lc.State() != before {
				t.Errorf("state changed on rejected transition: %v → %v", before, lc.State())
			}
		})
	}
}

func TestLifecycle_SameStateIsNoop(t *testing.T) {
	calls := 0
	lc := NewLifecycle(func(from, to State) { calls++ })

	if err := lc.Transition(StateIdle); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no callback, got %d", calls)
	}
}

func TestLifecycle_CloseFromAnyState(t *testing.T) {
	states := [][]State{
		nil,
		{StateAwaitingAudio},
		{StateAwaitingAudio, StateTranscribing},
		{StateAugmenting},
		{StateAugmenting, StateGenerating},
	}
	for _, path := range states {
		lc := NewLifecycle(nil)
		for _, s := range path {
			if err := lc.Transition(s); err != nil {
				t.Fatalf("setup transition to %v: %v", s, err)
			}
		}
		if !lc.Close() {
			t.Errorf("close from %v: expected true", lc.State())
		}
		if !lc.IsClosed() {
			t.Error("expected IsClosed after Close")
		}
	}
}

func TestLifecycle_CloseIdempotent(t *testing.T) {
	lc := NewLifecycle(nil)

	if !lc.Close() {
		t.Error("first close should return true")
	}
	if lc.Close() {
		t.Error("second close should return false")
	}
	if err := lc.Transition(StateIdle); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition after close, got %v", err)
	}
}

func TestLifecycle_OnTransition(t *testing.T) {
	type change struct{ from, to State }
	var got []change
	lc := NewLifecycle(func(from, to State) { got = append(got, change{from, to}) })

	_ = lc.Transition(StateAugmenting)
	_ = lc.Transition(StateGenerating)
	lc.Close()

	want := []change{
		{StateIdle, StateAugmenting},
		{StateAugmenting, StateGenerating},
		{StateGenerating, StateClosed},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestLifecycle_ConcurrentReads(t *testing.T) {
	lc := NewLifecycle(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lc.State()
			_ = lc.IsClosed()
		}()
	}
	_ = lc.Transition(StateAugmenting)
	lc.Close()
	wg.Wait()

	if !lc.IsClosed() {
		t.Error("expected closed")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateAwaitingAudio, "AWAITING_AUDIO"},
		{StateTranscribing, "TRANSCRIBING"},
		{StateAugmenting, "AUGMENTING"},
		{StateGenerating, "GENERATING"},
		{StateClosed, "CLOSED"},
		{State(42), "UNKNOWN(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestUtterance_CommitOnce(t *testing.T) {
	u := NewUtterance("s-utt-1")

	if !u.CanEmit() {
		t.Error("expected CanEmit on open utterance")
	}
	if err := u.Commit(); err != nil {
		t.Fatalf("first commit: unexpected error: %v", err)
	}
	if err := u.Commit(); err != ErrAlreadyCommitted {
		t.Errorf("second commit: expected ErrAlreadyCommitted, got %v", err)
	}
	if u.Drop() {
		t.Error("drop after commit should return false")
	}
	if u.State() != UtteranceCommitted {
		t.Errorf("expected COMMITTED, got %v", u.State())
	}
}

func TestUtterance_DropPreventsCommit(t *testing.T) {
	u := NewUtterance("s-utt-1")

	if !u.Drop() {
		t.Error("first drop should return true")
	}
	if u.Drop() {
		t.Error("second drop should return false")
	}
	if u.CanEmit() {
		t.Error("dropped utterance must not emit")
	}
	if err := u.Commit(); err != ErrUtteranceEnded {
		t.Errorf("expected ErrUtteranceEnded, got %v", err)
	}
}

func TestUtteranceIDs_Next(t *testing.T) {
	var gen UtteranceIDs

	if id := gen.Next("abc"); id != "abc-utt-1" {
		t.Errorf("expected 'abc-utt-1', got %s", id)
	}
	if id := gen.Next("abc"); id != "abc-utt-2" {
		t.Errorf("expected 'abc-utt-2', got %s", id)
	}
	if id := gen.Next("xyz"); id != "xyz-utt-3" {
		t.Errorf("expected 'xyz-utt-3', got %s", id)
	}
}

func TestUtteranceIDs_ThreadSafety(t *testing.T) {
	var gen UtteranceIDs
	numGoroutines := 100
	perGoroutine := 10

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*perGoroutine)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- gen.Next("s")
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("duplicate utterance ID generated: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != numGoroutines*perGoroutine {
		t.Errorf("expected %d unique IDs, got %d", numGoroutines*perGoroutine, len(seen))
	}
}

func TestSession_TurnsAreCopies(t *testing.T) {
	s := New("s1", nil)
	s.AppendTurn("user", "hello")

	turns := s.Turns()
	turns[0].Text = "mutated"

	if s.Turns()[0].Text != "hello" {
		t.Error("Turns must return a copy")
	}
	if _, idx := s.AppendTurn("assistant", "hi"); idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
	if info := s.Snapshot(); info.Turns != 2 || info.State != StateIdle || info.ID != "s1" {
		t.Errorf("unexpected snapshot: %+v", info)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}
