// Package audio adapts a callback-style STT engine into a pull-style
// transcription stream: the caller pushes one audio frame at a time and
// receives at most one transcript event back.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ai-voice-gateway/internal/models"
	"ai-voice-gateway/internal/observability/metrics"
	"ai-voice-gateway/internal/service/stt"
)

var (
	// ErrLimitExceeded is returned by PushFrame once a stream limit is hit.
	// Text already transcribed remains valid.
	ErrLimitExceeded = errors.New("audio: stream limit exceeded")

	// ErrStreamClosed is returned by PushFrame after Close.
	ErrStreamClosed = errors.New("audio: stream closed")
)

// Limits defines safety guardrails for a transcription stream.
// They prevent unbounded resource usage and ensure backpressure.
type Limits struct {
	MaxAudioBytes int64         // Max audio per utterance
	MaxDuration   time.Duration // Max utterance duration
	MaxPartials   int           // Max partial transcripts per utterance
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 5 * 1024 * 1024, // 5MB (~160 seconds at 16kHz 16-bit mono)
		MaxDuration:   5 * time.Minute,
		MaxPartials:   500,
	}
}

// TranscriptStream is one open transcription.
type TranscriptStream interface {
	// PushFrame forwards a frame to the engine and returns the transcript
	// produced since the previous call, or nil when there is none.
	PushFrame(ctx context.Context, frame models.AudioFrame) (*models.TranscriptEvent, error)
	Close() error
}

// Transcriber opens transcription streams on a shared STT provider.
type Transcriber struct {
	provider stt.Provider
	limits   Limits
	metrics  *metrics.Metrics
}

// NewTranscriber creates a Transcriber.
func NewTranscriber(provider stt.Provider, limits Limits) *Transcriber {
	return &Transcriber{
		provider: provider,
		limits:   limits,
		metrics:  metrics.DefaultMetrics,
	}
}

// Name returns the STT provider name.
func (t *Transcriber) Name() string {
	return t.provider.Name()
}

// Open starts a recognition session. ctx bounds the whole stream.
func (t *Transcriber) Open(ctx context.Context) (TranscriptStream, error) {
	s := &Stream{
		adapter:      t.provider.NewAdapter(),
		provider:     t.provider.Name(),
		limits:       t.limits,
		metrics:      t.metrics,
		segmentStart: time.Now(),
	}
	if err := s.adapter.Start(ctx, s); err != nil {
		t.metrics.RecordSTTError(s.provider, "start")
		return nil, fmt.Errorf("start %s stream: %w", s.provider, err)
	}
	return s, nil
}

// Stream implements TranscriptStream and receives engine callbacks.
//
// Between two PushFrame calls the engine may report several finals and
// partials. Finals are joined into one Final event; otherwise only the
// latest partial is returned. An engine error is surfaced on the next push.
type Stream struct {
	adapter  stt.Adapter
	provider string
	limits   Limits
	metrics  *metrics.Metrics

	mu             sync.Mutex
	finals         []string
	partial        string
	hasPartial     bool
	err            error
	closed         bool
	limitHit       bool
	segmentStart   time.Time
	audioBytes     int64
	partialCount   int
	utteranceCount int
}

// PushFrame implements TranscriptStream.
func (s *Stream) PushFrame(ctx context.Context, frame models.AudioFrame) (*models.TranscriptEvent, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStreamClosed
	}
	s.audioBytes += int64(len(frame.Data))
	if err := s.checkLimitsLocked(); err != nil {
		ev := s.drainLocked()
		s.mu.Unlock()
		return ev, err
	}
	s.mu.Unlock()

	s.metrics.RecordAudioReceived(len(frame.Data))

	if err := s.adapter.SendAudio(ctx, frame.Data); err != nil {
		s.metrics.RecordSTTError(s.provider, "send")
		return nil, fmt.Errorf("send audio: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.drainLocked(), nil
}

func (s *Stream) checkLimitsLocked() error {
	if s.limits.MaxAudioBytes > 0 && s.audioBytes > s.limits.MaxAudioBytes {
		s.recordLimitLocked("audio_bytes")
		return fmt.Errorf("%w: max audio bytes %d", ErrLimitExceeded, s.limits.MaxAudioBytes)
	}
	if s.limits.MaxDuration > 0 && time.Since(s.segmentStart) > s.limits.MaxDuration {
		s.recordLimitLocked("duration")
		return fmt.Errorf("%w: max duration %v", ErrLimitExceeded, s.limits.MaxDuration)
	}
	return nil
}

func (s *Stream) recordLimitLocked(limit string) {
	if s.limitHit {
		return
	}
	s.limitHit = true
	s.metrics.RecordLimitExceeded(limit)
	log.Warn().Str("provider", s.provider).Str("limit", limit).Msg("Transcription stream limit exceeded")
}

func (s *Stream) drainLocked() *models.TranscriptEvent {
	if len(s.finals) > 0 {
		text := strings.Join(s.finals, " ")
		s.finals = nil
		s.partial, s.hasPartial = "", false
		return &models.TranscriptEvent{Kind: models.TranscriptFinal, Text: text}
	}
	if s.hasPartial {
		s.hasPartial = false
		return &models.TranscriptEvent{Kind: models.TranscriptPartial, Text: s.partial}
	}
	return nil
}

// Close ends the STT session. It is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	m := s.Metrics()
	log.Debug().
		Str("provider", s.provider).
		Int64("audioBytes", m.AudioBytes).
		Int("partials", m.PartialCount).
		Int("utterances", m.Utterances).
		Dur("duration", m.Duration).
		Msg("Transcription stream closed")

	return s.adapter.Close()
}

// --- stt.Callback implementation ---

// OnPartial records the latest interim transcript, subject to MaxPartials.
func (s *Stream) OnPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.partialCount++
	if s.limits.MaxPartials > 0 && s.partialCount > s.limits.MaxPartials {
		s.recordLimitLocked("partials")
		return
	}
	s.partial = strings.TrimSpace(text)
	s.hasPartial = true
}

// OnFinal queues a non-empty final transcript fragment.
func (s *Stream) OnFinal(text string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// empty finals carry no content; the caller sees silence
	if text = strings.TrimSpace(text); text != "" {
		s.finals = append(s.finals, text)
	}
	log.Debug().Str("provider", s.provider).Float64("confidence", confidence).Msg("Final transcript received")
}

// OnEndOfUtterance starts a new utterance segment: per-utterance limits reset.
func (s *Stream) OnEndOfUtterance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utteranceCount++
	s.audioBytes = 0
	s.partialCount = 0
	s.limitHit = false
	s.segmentStart = time.Now()
	s.metrics.RecordUtterance()
}

// OnError records the first engine error; the in-progress utterance is
// dropped rather than finalized from incomplete data.
func (s *Stream) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = fmt.Errorf("%s stt: %w", s.provider, err)
	}
	s.partial, s.hasPartial = "", false
}

// StreamMetrics holds current utterance usage.
type StreamMetrics struct {
	AudioBytes   int64
	PartialCount int
	Utterances   int
	Duration     time.Duration
}

// Metrics returns current stream usage for observability.
func (s *Stream) Metrics() StreamMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamMetrics{
		AudioBytes:   s.audioBytes,
		PartialCount: s.partialCount,
		Utterances:   s.utteranceCount,
		Duration:     time.Since(s.segmentStart),
	}
}
