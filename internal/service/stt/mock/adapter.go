// Package mock provides a scripted STT engine for development and tests
// without cloud credentials. It simulates progressive partial transcripts,
// exactly one final transcript per utterance, and utterance boundary
// detection. Zeroed (silent) frames never advance the script.
package mock

import (
	"context"
	"sync"
	"time"

	"ai-voice-gateway/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"What is", "What is the", "What is the refund"},
		Final:      "What is the refund policy",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Summarize", "Summarize the", "Summarize the uploaded"},
		Final:      "Summarize the uploaded document",
		Confidence: 0.92,
	},
	{
		Partials:   []string{"Can you", "Can you help", "Can you help me with"},
		Final:      "Can you help me with my account",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"Tell me", "Tell me a"},
		Final:      "Tell me a joke",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"Thank you"},
		Final:      "Thank you very much",
		Confidence: 0.98,
	},
}

// Provider hands out mock adapters that cycle through a fixed script.
type Provider struct {
	// Latency delays every callback. Zero delivers callbacks synchronously
	// from SendAudio.
	Latency    time.Duration
	Utterances []SimulatedUtterance

	mu      sync.Mutex
	counter int
}

// NewProvider creates a Provider over DefaultUtterances.
func NewProvider(latency time.Duration) *Provider {
	return &Provider{Latency: latency, Utterances: DefaultUtterances}
}

// Name identifies the engine in logs and metrics.
func (p *Provider) Name() string { return "mock" }

// NewAdapter returns an adapter scripted with the next utterance.
func (p *Provider) NewAdapter() stt.Adapter {
	return p.next()
}

func (p *Provider) next() *Adapter {
	p.mu.Lock()
	defer p.mu.Unlock()

	utterances := p.Utterances
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	idx := p.counter % len(utterances)
	p.counter++
	return &Adapter{utterance: utterances[idx], latency: p.Latency}
}

// Adapter implements stt.Adapter with scripted responses:
// one partial per voiced frame, then exactly one final and an
// end-of-utterance signal. Later frames produce nothing.
type Adapter struct {
	cb           stt.Callback
	mu           sync.Mutex
	latency      time.Duration
	audioFrames  int                // Count of voiced frames received
	utterance    SimulatedUtterance // Current utterance being simulated
	partialIndex int                // Next partial to send
	finalSent    bool               // Ensures only one final per utterance
	closed       bool
}

// New creates a standalone adapter scripted with a single utterance.
func New(utt SimulatedUtterance) *Adapter {
	return &Adapter{utterance: utt}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio advances the script by one step for every non-silent frame.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()

	if a.closed || a.cb == nil || isSilence(audio) {
		a.mu.Unlock()
		return nil
	}

	a.audioFrames++

	var deliver func(cb stt.Callback)
	if a.partialIndex < len(a.utterance.Partials) {
		text := a.utterance.Partials[a.partialIndex]
		a.partialIndex++
		deliver = func(cb stt.Callback) { cb.OnPartial(text) }
	} else if !a.finalSent {
		// All partials sent: mimic silence detection ending the utterance
		a.finalSent = true
		utt := a.utterance
		deliver = func(cb stt.Callback) {
			cb.OnFinal(utt.Final, utt.Confidence)
			cb.OnEndOfUtterance()
		}
	}
	a.mu.Unlock()

	if deliver != nil {
		a.dispatch(deliver)
	}
	return nil
}

func (a *Adapter) dispatch(deliver func(cb stt.Callback)) {
	if a.latency <= 0 {
		a.mu.Lock()
		cb, closed := a.cb, a.closed
		a.mu.Unlock()
		if !closed && cb != nil {
			deliver(cb)
		}
		return
	}

	go func() {
		time.Sleep(a.latency)
		a.mu.Lock()
		cb, closed := a.cb, a.closed
		a.mu.Unlock()
		if !closed && cb != nil {
			deliver(cb)
		}
	}()
}

// Close ends the mock session. Pending callbacks are discarded.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func isSilence(audio []byte) bool {
	for _, b := range audio {
		if b != 0 {
			return false
		}
	}
	return true
}
