// Package mock provides a scripted generation backend for development and tests.
package mock

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"ai-voice-gateway/internal/models"
)

// Backend yields scripted deltas. With no script it echoes the last user
// message word by word.
type Backend struct {
	Chunks []string
	// Delay is waited before every chunk.
	Delay time.Duration
	// Err is reported after ErrAfter chunks when non-nil.
	Err      error
	ErrAfter int
	// Block makes the stream wait for cancellation after the scripted chunks.
	Block bool

	mu    sync.Mutex
	calls [][]models.Message
}

// Name implements generation.Backend.
func (b *Backend) Name() string { return "mock" }

// Calls returns the prompts received so far.
func (b *Backend) Calls() [][]models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]models.Message(nil), b.calls...)
}

// Stream implements generation.Backend.
func (b *Backend) Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		b.mu.Lock()
		b.calls = append(b.calls, append([]models.Message(nil), messages...))
		b.mu.Unlock()

		chunks := b.Chunks
		if chunks == nil {
			chunks = echo(messages)
		}

		for i, chunk := range chunks {
			if b.Err != nil && i == b.ErrAfter {
				yield("", b.Err)
				return
			}
			if b.Delay > 0 {
				timer := time.NewTimer(b.Delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					yield("", ctx.Err())
					return
				}
			}
			if !yield(chunk, nil) {
				return
			}
		}

		if b.Err != nil && b.ErrAfter >= len(chunks) {
			yield("", b.Err)
			return
		}
		if b.Block {
			<-ctx.Done()
			yield("", ctx.Err())
		}
	}
}

func echo(messages []models.Message) []string {
	var last string
	for _, m := range messages {
		if m.Role == models.RoleUser {
			last = m.Content
		}
	}
	words := strings.Fields("You said: " + last)
	out := make([]string, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out[i] = w
	}
	return out
}
