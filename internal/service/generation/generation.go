// Package generation adapts token-generation backends into an ordered,
// cancellable stream of GenerationChunks.
package generation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"ai-voice-gateway/internal/models"
)

var (
	// ErrCancelled is reported when the caller cancelled the generation.
	ErrCancelled = errors.New("generation cancelled")

	// ErrTimeout is reported when the generation exceeded its wall-clock
	// bound. Callers install it as the cancellation cause of the deadline.
	ErrTimeout = errors.New("generation timeout")

	// ErrStreamConsumed is reported when a sequence is ranged over twice.
	ErrStreamConsumed = errors.New("generation stream already consumed")
)

// BackendError is an error reported by the inference backend itself,
// as opposed to cancellation or timeout.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Backend streams raw text deltas for a prompt. Implementations stop
// promptly when ctx is done.
type Backend interface {
	Name() string
	Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Adapter is the Generation Stream Adapter.
type Adapter struct {
	backend Backend
}

// New creates an Adapter over backend.
func New(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

// Name returns the backend name.
func (a *Adapter) Name() string {
	return a.backend.Name()
}

// Generate returns a lazy, single-use sequence of chunks. Nothing is sent to
// the backend until the sequence is ranged over. Chunks carry increasing
// Seq numbers starting at 1; empty deltas are skipped. The sequence ends
// with at most one error, classified as ErrCancelled, ErrTimeout or
// *BackendError. Breaking out of the range releases the backend stream.
func (a *Adapter) Generate(ctx context.Context, messages []models.Message) iter.Seq2[models.GenerationChunk, error] {
	var used atomic.Bool
	name := a.backend.Name()

	return func(yield func(models.GenerationChunk, error) bool) {
		if used.Swap(true) {
			yield(models.GenerationChunk{}, ErrStreamConsumed)
			return
		}

		seq := 0
		for delta, err := range a.backend.Stream(ctx, messages) {
			if err != nil {
				yield(models.GenerationChunk{}, classify(ctx, name, err))
				return
			}
			if ctx.Err() != nil {
				break
			}
			if delta == "" {
				continue
			}
			seq++
			if !yield(models.GenerationChunk{Seq: seq, Text: delta}, nil) {
				return
			}
		}

		// some backends end the stream quietly on cancellation
		if err := ctx.Err(); err != nil {
			yield(models.GenerationChunk{}, classify(ctx, name, err))
		}
	}
}

// classify maps a backend or context error to the generation taxonomy.
func classify(ctx context.Context, backend string, err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCancelled) {
		return err
	}
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if errors.Is(cause, ErrTimeout) || errors.Is(cause, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return fmt.Errorf("%w: %v", ErrCancelled, cause)
	}
	return &BackendError{Backend: backend, Err: err}
}
