package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-voice-gateway/internal/models"
	"ai-voice-gateway/internal/service/stt"
	"ai-voice-gateway/internal/service/stt/mock"
)

// testAdapter implements stt.Adapter for testing. onAudio runs inside
// SendAudio so tests can script engine callbacks.
type testAdapter struct {
	started  bool
	closed   bool
	startErr error
	sendErr  error
	audio    [][]byte
	cb       stt.Callback
	onAudio  func(cb stt.Callback)
}

func (m *testAdapter) Start(ctx context.Context, cb stt.Callback) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	m.cb = cb
	return nil
}

func (m *testAdapter) SendAudio(ctx context.Context, audio []byte) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.audio = append(m.audio, audio)
	if m.onAudio != nil {
		m.onAudio(m.cb)
	}
	return nil
}

func (m *testAdapter) Close() error {
	m.closed = true
	return nil
}

// testProvider hands out a single prepared adapter.
type testProvider struct {
	adapter *testAdapter
}

func (p *testProvider) Name() string           { return "test" }
func (p *testProvider) NewAdapter() stt.Adapter { return p.adapter }

func openStream(t *testing.T, adapter *testAdapter, limits Limits) *Stream {
	t.Helper()
	ts, err := NewTranscriber(&testProvider{adapter: adapter}, limits).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ts.(*Stream)
}

func frame(n int) models.AudioFrame {
	return models.AudioFrame{Data: make([]byte, n)}
}

func TestTranscriber_OpenStartsAdapter(t *testing.T) {
	adapter := &testAdapter{}
	s := openStream(t, adapter, DefaultLimits())

	if !adapter.started {
		t.Error("expected adapter to be started")
	}
	if adapter.cb != stt.Callback(s) {
		t.Error("expected stream to be the callback receiver")
	}
}

func TestTranscriber_OpenStartError(t *testing.T) {
	adapter := &testAdapter{startErr: errors.New("no credentials")}
	_, err := NewTranscriber(&testProvider{adapter: adapter}, DefaultLimits()).Open(context.Background())
	if err == nil {
		t.Fatal("expected error when adapter fails to start")
	}
}

func TestStream_PushFrame_NoEvent(t *testing.T) {
	s := openStream(t, &testAdapter{}, DefaultLimits())

	ev, err := s.PushFrame(context.Background(), frame(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Errorf("expected no event, got %+v", ev)
	}
}

func TestStream_PushFrame_LatestPartialOnce(t *testing.T) {
	adapter := &testAdapter{}
	adapter.onAudio = func(cb stt.Callback) {
		cb.OnPartial("hel")
		cb.OnPartial(" hello ")
	}
	s := openStream(t, adapter, DefaultLimits())

	ev, err := s.PushFrame(context.Background(), frame(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Kind != models.TranscriptPartial || ev.Text != "hello" {
		t.Fatalf("expected Partial(hello), got %+v", ev)
	}

	adapter.onAudio = nil
	ev, _ = s.PushFrame(context.Background(), frame(10))
	if ev != nil {
		t.Errorf("expected partial to be delivered once, got %+v", ev)
	}
}

func TestStream_PushFrame_JoinsFinals(t *testing.T) {
	adapter := &testAdapter{}
	adapter.onAudio = func(cb stt.Callback) {
		cb.OnPartial("what is")
		cb.OnFinal("what is the", 0.9)
		cb.OnFinal("", 0.1)
		cb.OnFinal("refund policy", 0.8)
	}
	s := openStream(t, adapter, DefaultLimits())

	ev, err := s.PushFrame(context.Background(), frame(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || !ev.IsFinal() || ev.Text != "what is the refund policy" {
		t.Fatalf("expected joined final, got %+v", ev)
	}
}

func TestStream_EngineErrorSurfacedOnNextPush(t *testing.T) {
	adapter := &testAdapter{}
	s := openStream(t, adapter, DefaultLimits())

	s.OnPartial("partial")
	s.OnError(errors.New("stream reset"))

	ev, err := s.PushFrame(context.Background(), frame(10))
	if err == nil {
		t.Fatal("expected engine error")
	}
	if ev != nil {
		t.Errorf("expected partial to be dropped on error, got %+v", ev)
	}
}

func TestStream_SendError(t *testing.T) {
	adapter := &testAdapter{sendErr: errors.New("broken pipe")}
	s := openStream(t, adapter, DefaultLimits())

	if _, err := s.PushFrame(context.Background(), frame(10)); err == nil {
		t.Fatal("expected send error")
	}
}

func TestStream_MaxAudioBytesLimit(t *testing.T) {
	adapter := &testAdapter{}
	s := openStream(t, adapter, Limits{MaxAudioBytes: 100, MaxDuration: time.Hour, MaxPartials: 1000})

	ctx := context.Background()

	if _, err := s.PushFrame(ctx, frame(50)); err != nil {
		t.Fatalf("First push should succeed: %v", err)
	}

	s.OnFinal("kept text", 0.9)

	// 60 more bytes (total 110) exceeds the limit
	ev, err := s.PushFrame(ctx, frame(60))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Expected ErrLimitExceeded, got %v", err)
	}
	if ev == nil || ev.Text != "kept text" {
		t.Errorf("Expected pending final to be returned with the limit error, got %+v", ev)
	}
	if len(adapter.audio) != 1 {
		t.Errorf("Expected over-limit frame not to reach the engine, sent %d frames", len(adapter.audio))
	}
}

func TestStream_MaxPartialsLimit(t *testing.T) {
	s := openStream(t, &testAdapter{}, Limits{MaxAudioBytes: 1024 * 1024, MaxDuration: time.Hour, MaxPartials: 3})

	for _, text := range []string{"a", "a b", "a b c"} {
		s.OnPartial(text)
	}

	// 4th partial is dropped
	s.OnPartial("one too many")

	ev, err := s.PushFrame(context.Background(), frame(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Text != "a b c" {
		t.Errorf("Expected last partial within limit, got %+v", ev)
	}
}

func TestStream_MaxDurationLimit(t *testing.T) {
	s := openStream(t, &testAdapter{}, Limits{MaxAudioBytes: 1024 * 1024, MaxDuration: 50 * time.Millisecond, MaxPartials: 1000})

	ctx := context.Background()

	if _, err := s.PushFrame(ctx, frame(5)); err != nil {
		t.Fatalf("First push should succeed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, err := s.PushFrame(ctx, frame(5)); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Expected ErrLimitExceeded, got %v", err)
	}
}

func TestStream_MetricsReset(t *testing.T) {
	s := openStream(t, &testAdapter{}, DefaultLimits())

	s.PushFrame(context.Background(), frame(100))
	s.OnPartial("partial 1")
	s.OnPartial("partial 2")

	m := s.Metrics()
	if m.AudioBytes != 100 {
		t.Errorf("Expected 100 audio bytes, got %d", m.AudioBytes)
	}
	if m.PartialCount != 2 {
		t.Errorf("Expected 2 partials, got %d", m.PartialCount)
	}

	// End of utterance starts a new segment
	s.OnEndOfUtterance()

	m = s.Metrics()
	if m.AudioBytes != 0 {
		t.Errorf("Expected 0 audio bytes after reset, got %d", m.AudioBytes)
	}
	if m.PartialCount != 0 {
		t.Errorf("Expected 0 partials after reset, got %d", m.PartialCount)
	}
	if m.Utterances != 1 {
		t.Errorf("Expected 1 utterance, got %d", m.Utterances)
	}
}

func TestStream_Close(t *testing.T) {
	adapter := &testAdapter{}
	s := openStream(t, adapter, DefaultLimits())

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed")
	}

	if _, err := s.PushFrame(context.Background(), frame(1)); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}

	// Late callbacks are ignored
	s.OnFinal("late", 1)
	if len(s.finals) != 0 {
		t.Error("expected late final to be ignored")
	}
}

func TestStream_WithMockEngine(t *testing.T) {
	provider := mock.NewProvider(0)
	provider.Utterances = []mock.SimulatedUtterance{
		{Partials: []string{"hi", "hi there"}, Final: "hi there friend", Confidence: 0.9},
	}
	ts, err := NewTranscriber(provider, DefaultLimits()).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ts.Close()

	voiced := models.AudioFrame{Data: []byte{1, 2, 3, 4}}
	var got []models.TranscriptEvent
	for i := 0; i < 5; i++ {
		ev, err := ts.PushFrame(context.Background(), voiced)
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if ev != nil {
			got = append(got, *ev)
		}
	}

	want := []models.TranscriptEvent{
		{Kind: models.TranscriptPartial, Text: "hi"},
		{Kind: models.TranscriptPartial, Text: "hi there"},
		{Kind: models.TranscriptFinal, Text: "hi there friend"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.MaxAudioBytes != 5*1024*1024 {
		t.Errorf("Expected default max audio bytes to be 5MB, got %d", limits.MaxAudioBytes)
	}
	if limits.MaxDuration != 5*time.Minute {
		t.Errorf("Expected default max duration to be 5min, got %v", limits.MaxDuration)
	}
	if limits.MaxPartials != 500 {
		t.Errorf("Expected default max partials to be 500, got %d", limits.MaxPartials)
	}
}
