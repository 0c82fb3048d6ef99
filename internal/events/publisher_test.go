package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-voice-gateway/internal/models"
	"ai-voice-gateway/internal/schema"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerTranscript != nil {
				t.Error("expected nil transcript writer when disabled")
			}
			if p.writerTurn != nil {
				t.Error("expected nil turn writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:         false,
		Brokers:         []string{"localhost:9092"},
		TopicTranscript: "test.transcript",
		TopicTurn:       "test.turn",
		Principal:       "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicTranscript != "test.transcript" {
		t.Errorf("expected transcript topic 'test.transcript', got %s", p.topicTranscript)
	}
	if p.topicTurn != "test.turn" {
		t.Errorf("expected turn topic 'test.turn', got %s", p.topicTurn)
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:         true,
		Brokers:         []string{"localhost:9092"},
		TopicTranscript: "t1",
		TopicTurn:       "t2",
	})
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerTranscript == nil || p.writerTranscript.Topic != "t1" {
		t.Error("expected transcript writer on topic t1")
	}
	if p.writerTurn == nil || p.writerTurn.Topic != "t2" {
		t.Error("expected turn writer on topic t2")
	}
}

func TestPublisher_PublishTranscript_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicTranscript: "test.transcript"})

	err := p.PublishTranscript(context.Background(), models.TranscriptFinalEvent{
		EventType:   models.EventTranscriptFinal,
		SessionID:   "sess-1",
		UtteranceID: "sess-1-utt-1",
		Timestamp:   time.Now().UnixMilli(),
		Text:        "hello world",
		FullText:    "hello world",
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishTurn_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicTurn: "test.turn"})

	err := p.PublishTurn(context.Background(), models.TurnAppendedEvent{
		EventType: models.EventTurnAppended,
		SessionID: "sess-1",
		Index:     0,
		Role:      models.RoleUser,
		Text:      "hello",
		Source:    "text",
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishSessionClosed_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishSessionClosed(context.Background(), models.SessionClosedEvent{
		EventType: models.EventSessionClosed,
		SessionID: "sess-1",
		Reason:    "client_exit",
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_RejectsInvalidEvents(t *testing.T) {
	p := New(&Config{Enabled: false})
	ctx := context.Background()

	tests := []struct {
		name    string
		publish func() error
		field   string
	}{
		{
			name: "transcript without session",
			publish: func() error {
				return p.PublishTranscript(ctx, models.TranscriptFinalEvent{
					EventType: models.EventTranscriptFinal, UtteranceID: "u", Text: "hi",
				})
			},
			field: "sessionId",
		},
		{
			name: "transcript without text",
			publish: func() error {
				return p.PublishTranscript(ctx, models.TranscriptFinalEvent{
					EventType: models.EventTranscriptFinal, SessionID: "s", UtteranceID: "u",
				})
			},
			field: "text",
		},
		{
			name: "turn with system role",
			publish: func() error {
				return p.PublishTurn(ctx, models.TurnAppendedEvent{
					EventType: models.EventTurnAppended, SessionID: "s", Role: models.RoleSystem,
				})
			},
			field: "role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.publish()
			var fe *schema.FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *schema.FieldError, got %v", err)
			}
			if fe.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, fe.Field)
			}
		})
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisher(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
