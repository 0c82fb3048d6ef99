package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"ai-voice-gateway/internal/models"
	"ai-voice-gateway/internal/observability/logging"
	"ai-voice-gateway/internal/observability/metrics"
	"ai-voice-gateway/internal/observability/tracing"
	"ai-voice-gateway/internal/protocol"
	"ai-voice-gateway/internal/service/audio"
	"ai-voice-gateway/internal/service/capture"
	"ai-voice-gateway/internal/service/generation"
	"ai-voice-gateway/internal/service/ingest"
	"ai-voice-gateway/internal/service/retrieval"
)

// Close causes.
var (
	ErrConnectionLost    = errors.New("connection lost")
	ErrInactivityTimeout = errors.New("inactivity timeout")
	ErrClientExit        = errors.New("client exit")
	ErrStopPhrase        = errors.New("stop phrase")
	ErrShutdown          = errors.New("server shutdown")
)

var (
	ErrAlreadyRunning  = errors.New("session already running")
	ErrSessionClosed   = errors.New("session closed")
	ErrNoCaptureDevice = errors.New("no capture device configured")
	ErrInboundFull     = errors.New("inbound queue full")
)

// Client-facing error messages.
const (
	MsgEmptyText         = "Empty text input"
	MsgGenerationTimeout = "LLM response timeout"
)

// Turn sources and generation outcomes used in metrics and events.
const (
	SourceText       = "text"
	SourceVoice      = "voice"
	SourceGeneration = "generation"

	OutcomeCompleted    = "completed"
	OutcomeTimeout      = "timeout"
	OutcomeCancelled    = "cancelled"
	OutcomeBackendError = "backend_error"
	OutcomeError        = "error"
)

// Transcriber opens transcription streams.
type Transcriber interface {
	Name() string
	Open(ctx context.Context) (audio.TranscriptStream, error)
}

// Augmenter composes prompts with retrieved context.
type Augmenter interface {
	Augment(ctx context.Context, query string, history []models.Turn, k int) retrieval.Result
}

// Generator streams assistant output.
type Generator interface {
	Name() string
	Generate(ctx context.Context, messages []models.Message) iter.Seq2[models.GenerationChunk, error]
}

// Ingester stores uploaded documents.
type Ingester interface {
	Ingest(ctx context.Context, origin, filename string, data []byte) (ingest.Report, error)
}

// Publisher receives conversation events.
type Publisher interface {
	PublishTranscript(ctx context.Context, event models.TranscriptFinalEvent) error
	PublishTurn(ctx context.Context, event models.TurnAppendedEvent) error
	PublishSessionClosed(ctx context.Context, event models.SessionClosedEvent) error
}

// Deps are the shared services a Machine consumes. Device, Transcriber,
// Augmenter, Ingester and Publisher are optional.
type Deps struct {
	Device      capture.Device
	Transcriber Transcriber
	Augmenter   Augmenter
	Generator   Generator
	Ingester    Ingester
	Publisher   Publisher
}

// Config tunes a Machine.
type Config struct {
	GenerationTimeout time.Duration
	SilenceFrames     int
	StopPhrases       []string
	RetrievalTopK     int
	InboundQueue      int
	OutboundQueue     int
	PublishTimeout    time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		GenerationTimeout: 240 * time.Second,
		SilenceFrames:     25,
		StopPhrases:       []string{"stop", "exit", "berhenti"},
		RetrievalTopK:     retrieval.DefaultTopK,
		InboundQueue:      32,
		OutboundQueue:     256,
		PublishTimeout:    5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = def.GenerationTimeout
	}
	if c.SilenceFrames <= 0 {
		c.SilenceFrames = def.SilenceFrames
	}
	if c.StopPhrases == nil {
		c.StopPhrases = def.StopPhrases
	}
	if c.InboundQueue <= 0 {
		c.InboundQueue = def.InboundQueue
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = def.OutboundQueue
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = def.PublishTimeout
	}
	return c
}

var utteranceIDs UtteranceIDs

// Machine is the Session State Machine. Inbound messages are processed one
// at a time by Run; outbound events are delivered in production order on
// Outbound, which is closed when Run returns.
type Machine struct {
	session   *Session
	cfg       Config
	deps      Deps
	stopWords []string

	inbound chan protocol.Inbound
	out     chan protocol.Event
	exitCh  chan struct{}
	done    chan struct{}

	running  atomic.Bool
	exitOnce sync.Once

	mu         sync.Mutex
	exitCause  error
	turnCancel context.CancelCauseFunc

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewMachine creates a Machine for a new session with the given id.
func NewMachine(id string, cfg Config, deps Deps) *Machine {
	cfg = cfg.withDefaults()
	m := &Machine{
		cfg:     cfg,
		deps:    deps,
		inbound: make(chan protocol.Inbound, cfg.InboundQueue),
		out:     make(chan protocol.Event, cfg.OutboundQueue),
		exitCh:  make(chan struct{}),
		done:    make(chan struct{}),
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithSession(id),
	}
	for _, p := range cfg.StopPhrases {
		if p = normalizePhrase(p); p != "" {
			m.stopWords = append(m.stopWords, p)
		}
	}
	m.session = New(id, m.onTransition)
	return m
}

// Session returns the session driven by this machine.
func (m *Machine) Session() *Session { return m.session }

// Outbound returns the ordered event stream for the client.
func (m *Machine) Outbound() <-chan protocol.Event { return m.out }

// Done is closed when Run has returned.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Deliver queues an inbound message. Exit is acted on immediately: it
// cancels any in-flight turn. Deliver blocks while the inbound queue is full.
func (m *Machine) Deliver(ctx context.Context, msg protocol.Inbound) error {
	m.session.Touch()
	if _, ok := msg.(protocol.Exit); ok {
		m.RequestExit(ErrClientExit)
		return nil
	}
	if m.exitRequested() {
		return ErrSessionClosed
	}
	select {
	case m.inbound <- msg:
		return nil
	case <-m.exitCh:
		return ErrSessionClosed
	case <-m.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Offer is Deliver without blocking: a full inbound queue returns
// ErrInboundFull and the message is not queued. Exit is never refused.
func (m *Machine) Offer(msg protocol.Inbound) error {
	m.session.Touch()
	if _, ok := msg.(protocol.Exit); ok {
		m.RequestExit(ErrClientExit)
		return nil
	}
	if m.exitRequested() {
		return ErrSessionClosed
	}
	select {
	case m.inbound <- msg:
		return nil
	case <-m.done:
		return ErrSessionClosed
	default:
		m.metrics.RecordProtocolError("queue_full")
		return ErrInboundFull
	}
}

// RequestExit asks the machine to close with cause. The in-flight turn, if
// any, is cancelled with the same cause. Only the first cause is kept.
func (m *Machine) RequestExit(cause error) {
	if cause == nil {
		cause = ErrClientExit
	}
	m.exitOnce.Do(func() {
		m.mu.Lock()
		m.exitCause = cause
		cancel := m.turnCancel
		m.mu.Unlock()

		close(m.exitCh)
		if cancel != nil {
			cancel(cause)
		}
	})
}

func (m *Machine) exitRequested() bool {
	select {
	case <-m.exitCh:
		return true
	default:
		return false
	}
}

func (m *Machine) cause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCause
}

// Run processes inbound messages until the session closes and returns the
// close cause. It must be called at most once.
func (m *Machine) Run(ctx context.Context) error {
	if m.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)
	defer close(m.out)

	m.logger.Info().Msg("Session started")
	m.emit(ctx, protocol.Status(protocol.StatusConnected))

	for {
		select {
		case <-m.exitCh:
			return m.close(ctx)
		case <-ctx.Done():
			m.RequestExit(context.Cause(ctx))
			return m.close(ctx)
		default:
		}

		select {
		case <-m.exitCh:
		case <-ctx.Done():
		case msg := <-m.inbound:
			m.dispatch(ctx, msg)
		}
	}
}

func (m *Machine) dispatch(ctx context.Context, msg protocol.Inbound) {
	if m.exitRequested() {
		return
	}
	switch msg := msg.(type) {
	case protocol.StartListening:
		m.runTurn(ctx, m.listen)
	case protocol.SendText:
		m.runTurn(ctx, func(ctx context.Context) { m.sendText(ctx, msg.Text) })
	case protocol.UploadFile:
		m.runTurn(ctx, func(ctx context.Context) { m.upload(ctx, msg) })
	case protocol.Exit:
		m.RequestExit(ErrClientExit)
	case protocol.Invalid:
		m.protocolError(ctx, msg.Err)
	default:
		m.protocolError(ctx, &protocol.ParseError{Kind: protocol.KindUnknownAction, Action: msg.Action(), Msg: "unknown action"})
	}
}

// runTurn runs fn under a cancellable turn context and always resolves the
// session back to IDLE, unless it is closing.
func (m *Machine) runTurn(ctx context.Context, fn func(ctx context.Context)) {
	turnCtx, cancel := context.WithCancelCause(ctx)

	m.mu.Lock()
	if m.exitCause != nil {
		cause := m.exitCause
		m.mu.Unlock()
		cancel(cause)
		return
	}
	m.turnCancel = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.turnCancel = nil
		m.mu.Unlock()
		cancel(nil)
		m.toIdle()
	}()

	fn(turnCtx)
}

func (m *Machine) close(ctx context.Context) error {
	cause := m.cause()
	m.session.lifecycle.Close()

	if errors.Is(cause, ErrClientExit) || errors.Is(cause, ErrStopPhrase) {
		m.emitWithin(protocol.Status(protocol.StatusSessionEnded), m.cfg.PublishTimeout)
	}

	reason := CloseReason(cause)
	duration := time.Since(m.session.CreatedAt())
	turns := m.session.TurnCount()
	m.metrics.RecordSessionClosed(reason, duration.Seconds())
	m.publish(ctx, func(ctx context.Context) error {
		return m.deps.Publisher.PublishSessionClosed(ctx, models.SessionClosedEvent{
			EventType: models.EventSessionClosed,
			SessionID: m.session.ID(),
			Timestamp: time.Now().UnixMilli(),
			Reason:    reason,
			Turns:     turns,
		})
	})

	m.logger.Info().
		Str("reason", reason).
		Int("turns", turns).
		Dur("duration", duration).
		Msg("Session closed")
	return cause
}

// CloseReason maps a close cause to a metric label.
func CloseReason(cause error) string {
	switch {
	case errors.Is(cause, ErrClientExit):
		return "client_exit"
	case errors.Is(cause, ErrStopPhrase):
		return "stop_phrase"
	case errors.Is(cause, ErrInactivityTimeout):
		return "inactivity_timeout"
	case errors.Is(cause, ErrConnectionLost):
		return "connection_lost"
	case errors.Is(cause, ErrShutdown), errors.Is(cause, context.Canceled):
		return "shutdown"
	default:
		return "error"
	}
}

// --- text path ---

func (m *Machine) sendText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		m.emit(ctx, protocol.Error(MsgEmptyText))
		return
	}
	history := m.session.Turns()
	m.appendTurn(ctx, models.RoleUser, text, SourceText, "", 0)
	m.respond(ctx, text, history)
}

// --- voice path ---

func (m *Machine) listen(ctx context.Context) {
	utt := NewUtterance(utteranceIDs.Next(m.session.ID()))
	provider := ""
	if m.deps.Transcriber != nil {
		provider = m.deps.Transcriber.Name()
	}
	log := logging.WithUtterance(m.session.ID(), utt.ID(), provider)

	if !m.transition(StateAwaitingAudio) {
		return
	}
	m.emit(ctx, protocol.Status(protocol.StatusListening))
	history := m.session.Turns()

	text, err := m.capture(ctx, utt, log)
	if err != nil {
		utt.Drop()
		if ctx.Err() != nil {
			log.Debug().Err(context.Cause(ctx)).Msg("Capture cancelled")
			return
		}
		log.Error().Err(err).Msg("Audio capture failed")
		m.emit(ctx, protocol.Error("Audio capture failed: "+err.Error()))
		return
	}

	if m.isStopPhrase(text) {
		utt.Drop()
		log.Info().Str("text", text).Msg("Stop phrase received, ending session")
		m.RequestExit(ErrStopPhrase)
		return
	}
	if text == "" {
		utt.Drop()
		m.emit(ctx, protocol.Status(protocol.StatusNoSpeech))
		return
	}
	if err := utt.Commit(); err != nil {
		log.Warn().Err(err).Msg("Utterance already ended")
		return
	}

	m.appendTurn(ctx, models.RoleUser, text, SourceVoice, "", 0)
	m.respond(ctx, text, history)
}

// capture holds the device and a transcription stream for one utterance and
// returns the joined final text. Both are released before it returns.
func (m *Machine) capture(ctx context.Context, utt *Utterance, log zerolog.Logger) (string, error) {
	if m.deps.Device == nil || m.deps.Transcriber == nil {
		return "", ErrNoCaptureDevice
	}

	handle, err := m.deps.Device.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer handle.Release()

	stream, err := m.deps.Transcriber.Open(ctx)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var (
		finals      []string
		lastPartial string
		silence     int
	)
	for silence <= m.cfg.SilenceFrames {
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}

		frame, err := handle.ReadFrame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrOverflow):
			log.Debug().Msg("Capture overflow, retrying read")
			continue
		case errors.Is(err, capture.ErrReadTimeout):
			silence++
			continue
		case ctx.Err() != nil:
			return "", context.Cause(ctx)
		default:
			return "", err
		}

		ev, err := stream.PushFrame(ctx, frame)
		limitHit := errors.Is(err, audio.ErrLimitExceeded)
		if err != nil && !limitHit {
			if ctx.Err() != nil {
				return "", context.Cause(ctx)
			}
			return "", err
		}

		if ev == nil {
			silence++
		} else if ev.Kind == models.TranscriptPartial {
			if ev.Text == "" || ev.Text == lastPartial {
				if ev.Text != "" {
					m.metrics.RecordPartialSuppressed()
				}
				silence++
			} else if utt.CanEmit() {
				lastPartial = ev.Text
				silence = 0
				m.transition(StateTranscribing)
				m.metrics.RecordPartialTranscript()
				m.emit(ctx, protocol.PartialTranscription(ev.Text))
			}
		} else {
			text := strings.TrimSpace(ev.Text)
			if text == "" {
				silence++
			} else {
				silence = 0
				m.transition(StateTranscribing)
				finals = append(finals, text)
				full := strings.Join(finals, " ")
				m.metrics.RecordFinalTranscript()
				m.emit(ctx, protocol.Transcription(text, full))
				m.publishTranscript(ctx, utt.ID(), text, full)

				if m.containsStopWord(text) {
					log.Info().Str("text", text).Msg("Stop word detected, ending capture")
					return full, nil
				}
			}
		}

		if limitHit {
			log.Warn().Err(err).Msg("Transcription limit reached, finalizing utterance")
			break
		}
	}

	return strings.Join(finals, " "), nil
}

func (m *Machine) containsStopWord(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range m.stopWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (m *Machine) isStopPhrase(text string) bool {
	n := normalizePhrase(text)
	return n != "" && slices.Contains(m.stopWords, n)
}

// normalizePhrase lowercases s, trims surrounding punctuation and collapses
// whitespace.
func normalizePhrase(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return strings.Join(strings.Fields(s), " ")
}

// --- augmentation and generation ---

func (m *Machine) respond(ctx context.Context, query string, history []models.Turn) {
	if !m.transition(StateAugmenting) {
		return
	}

	var messages []models.Message
	if m.deps.Augmenter != nil {
		actx, span := tracing.StartSpan(ctx, "session.augment", tracing.SessionID(m.session.ID()))
		res := m.deps.Augmenter.Augment(actx, query, history, m.cfg.RetrievalTopK)
		span.SetAttributes(
			attribute.Int("results", len(res.ResultsUsed)),
			attribute.Bool("degraded", res.Degraded),
		)
		span.End()
		messages = res.Messages
		if res.Degraded {
			m.logger.Info().Msg("Responding without retrieved context")
		}
	} else {
		messages = append(models.Messages(history), models.Message{Role: models.RoleUser, Content: query})
	}

	if ctx.Err() != nil {
		return
	}
	if !m.transition(StateGenerating) {
		return
	}
	m.generate(ctx, messages)
}

func (m *Machine) generate(ctx context.Context, messages []models.Message) {
	m.emit(ctx, protocol.Status(protocol.StatusProcessing))
	backend := m.deps.Generator.Name()

	gctx, cancel := context.WithTimeoutCause(ctx, m.cfg.GenerationTimeout, generation.ErrTimeout)
	defer cancel()
	gctx, span := tracing.StartSpan(gctx, "session.generate",
		tracing.SessionID(m.session.ID()),
		attribute.String("backend", backend),
	)
	defer span.End()

	start := time.Now()
	var reply strings.Builder
	var genErr error
	for chunk, err := range m.deps.Generator.Generate(gctx, messages) {
		if err != nil {
			genErr = err
			break
		}
		reply.WriteString(chunk.Text)
		m.metrics.RecordGenerationChunk()
		// a client that stops reading must not hold the turn past its deadline
		if !m.emit(gctx, protocol.ResponseChunk(chunk.Text)) {
			genErr = m.interruption(gctx)
			break
		}
	}
	elapsed := time.Since(start)
	text := reply.String()

	var be *generation.BackendError
	outcome := OutcomeCompleted
	switch {
	case genErr == nil:
		if text != "" {
			m.appendTurn(ctx, models.RoleAssistant, text, SourceGeneration, outcome, elapsed)
		}
		m.emit(ctx, protocol.ResponseComplete(text))
		m.emit(ctx, protocol.Status(fmt.Sprintf("⏱ Response time: %.2fs", elapsed.Seconds())))

	case errors.Is(genErr, generation.ErrTimeout):
		outcome = OutcomeTimeout
		m.logger.Warn().Dur("elapsed", elapsed).Int("partialChars", len(text)).Msg("Generation timed out")
		if text != "" {
			m.appendTurn(ctx, models.RoleAssistant, text, SourceGeneration, outcome, elapsed)
			m.emit(ctx, protocol.ResponseComplete(text))
		}
		m.emit(ctx, protocol.Error(MsgGenerationTimeout))

	case errors.Is(genErr, generation.ErrCancelled):
		outcome = OutcomeCancelled
		m.logger.Info().Err(genErr).Msg("Generation cancelled")
		if text != "" {
			m.appendTurn(ctx, models.RoleAssistant, text, SourceGeneration, outcome, elapsed)
		}

	case errors.As(genErr, &be):
		outcome = OutcomeBackendError
		m.logger.Error().Err(genErr).Msg("Generation backend error")
		m.emit(ctx, protocol.Error("LLM Error: "+be.Err.Error()))

	default:
		outcome = OutcomeError
		m.logger.Error().Err(genErr).Msg("Generation failed")
		m.emit(ctx, protocol.Error("Generation Error: "+genErr.Error()))
	}

	span.SetAttributes(attribute.String("outcome", outcome))
	m.metrics.RecordGeneration(backend, outcome, elapsed.Seconds())
}

// --- upload ---

func (m *Machine) upload(ctx context.Context, msg protocol.UploadFile) {
	if m.deps.Ingester == nil {
		m.emit(ctx, protocol.Error("Upload failed: document ingestion is disabled"))
		return
	}
	report, err := m.deps.Ingester.Ingest(ctx, ingest.OriginSession, msg.Filename, msg.FileData)
	if err != nil {
		m.emit(ctx, protocol.Error("Upload failed: "+err.Error()))
		return
	}
	m.logger.Info().Str("file", msg.Filename).Int("chunks", report.Chunks()).Msg("File uploaded")
	m.emit(ctx, protocol.FileUploaded(msg.Filename, "success"))
}

// --- helpers ---

func (m *Machine) protocolError(ctx context.Context, err error) {
	kind := protocol.ErrorKindOf(err)
	m.metrics.RecordProtocolError(string(kind))
	m.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Invalid inbound message")
	m.emit(ctx, protocol.Error("Invalid message: "+err.Error()))
}

func (m *Machine) onTransition(from, to State) {
	m.metrics.RecordTransition(from.String(), to.String())
	m.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("State transition")
}

func (m *Machine) transition(to State) bool {
	if err := m.session.lifecycle.Transition(to); err != nil {
		m.logger.Warn().Err(err).Msg("Rejected state transition")
		return false
	}
	return true
}

func (m *Machine) toIdle() {
	if m.exitRequested() {
		return
	}
	lc := m.session.lifecycle
	if lc.IsClosed() || lc.State() == StateIdle {
		return
	}
	m.transition(StateIdle)
}

func (m *Machine) appendTurn(ctx context.Context, role models.Role, text, source, outcome string, latency time.Duration) {
	turn, index := m.session.AppendTurn(role, text)
	m.metrics.RecordTurn(string(role), source)
	m.publish(ctx, func(ctx context.Context) error {
		return m.deps.Publisher.PublishTurn(ctx, models.TurnAppendedEvent{
			EventType: models.EventTurnAppended,
			SessionID: m.session.ID(),
			Index:     index,
			Timestamp: turn.CreatedAt.UnixMilli(),
			Role:      role,
			Text:      text,
			Source:    source,
			Outcome:   outcome,
			LatencyMs: latency.Milliseconds(),
		})
	})
}

func (m *Machine) publishTranscript(ctx context.Context, utteranceID, text, full string) {
	m.publish(ctx, func(ctx context.Context) error {
		return m.deps.Publisher.PublishTranscript(ctx, models.TranscriptFinalEvent{
			EventType:   models.EventTranscriptFinal,
			SessionID:   m.session.ID(),
			UtteranceID: utteranceID,
			Timestamp:   time.Now().UnixMilli(),
			Text:        text,
			FullText:    full,
		})
	})
}

// publish runs fn detached from turn cancellation, bounded by PublishTimeout.
func (m *Machine) publish(ctx context.Context, fn func(ctx context.Context) error) {
	if m.deps.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.PublishTimeout)
	defer cancel()
	if err := fn(pctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to publish conversation event")
	}
}

// emit queues ev for the client, blocking while the queue is full. Events
// are dropped once ctx is done or the session is closing.
func (m *Machine) emit(ctx context.Context, ev protocol.Event) bool {
	select {
	case m.out <- ev:
		return true
	default:
	}
	select {
	case m.out <- ev:
		return true
	case <-ctx.Done():
	case <-m.exitCh:
	}
	m.logger.Debug().Str("type", ev.Type).Msg("Dropped outbound event")
	return false
}

// emitWithin queues ev, waiting at most d for room. Used once the session is
// closing, when emit would drop immediately.
func (m *Machine) emitWithin(ev protocol.Event, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case m.out <- ev:
	case <-t.C:
		m.logger.Warn().Str("type", ev.Type).Msg("Dropped outbound event")
	}
}

// interruption classifies why a generation context stopped a turn.
func (m *Machine) interruption(gctx context.Context) error {
	cause := context.Cause(gctx)
	if cause == nil {
		cause = m.cause()
	}
	if errors.Is(cause, generation.ErrTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		return generation.ErrTimeout
	}
	return fmt.Errorf("%w: %v", generation.ErrCancelled, cause)
}
