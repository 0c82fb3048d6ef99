// Package events publishes conversation events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-voice-gateway/internal/models"
	"ai-voice-gateway/internal/observability/metrics"
	"ai-voice-gateway/internal/schema"
)

// Publisher publishes conversation events to separate Kafka topics: final
// transcripts on one, turns and session lifecycle on the other. Partial
// transcripts are never published.
type Publisher struct {
	writerTranscript *kafka.Writer
	writerTurn       *kafka.Writer
	principal        string
	topicTranscript  string
	topicTurn        string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicTranscript string
	TopicTurn       string
	Principal       string
	Enabled         bool
}

// New creates a new Kafka event publisher. A nil or disabled config yields a
// log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicTranscript: cfg.TopicTranscript,
			topicTurn:       cfg.TopicTurn,
			enabled:         false,
			metrics:         m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("topicTurn", cfg.TopicTurn).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTranscript: newWriter(cfg.Brokers, cfg.TopicTranscript, transport),
		writerTurn:       newWriter(cfg.Brokers, cfg.TopicTurn, transport),
		principal:        cfg.Principal,
		topicTranscript:  cfg.TopicTranscript,
		topicTurn:        cfg.TopicTurn,
		enabled:          true,
		metrics:          m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishTranscript publishes a final transcript fragment keyed by session.
func (p *Publisher) PublishTranscript(ctx context.Context, event models.TranscriptFinalEvent) error {
	return p.publish(ctx, p.writerTranscript, p.topicTranscript, event.EventType, event.SessionID, event)
}

// PublishTurn publishes an appended conversation turn keyed by session.
func (p *Publisher) PublishTurn(ctx context.Context, event models.TurnAppendedEvent) error {
	return p.publish(ctx, p.writerTurn, p.topicTurn, event.EventType, event.SessionID, event)
}

// PublishSessionClosed publishes the end of a session on the turn topic so
// consumers see it after the session's last turn.
func (p *Publisher) PublishSessionClosed(ctx context.Context, event models.SessionClosedEvent) error {
	return p.publish(ctx, p.writerTurn, p.topicTurn, event.EventType, event.SessionID, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := schema.Validate(event); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("eventType", eventType).Msg("Rejected invalid event")
		return fmt.Errorf("invalid %s event: %w", eventType, err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTranscript != nil {
		if e := p.writerTranscript.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcript writer")
			err = e
		}
	}
	if p.writerTurn != nil {
		if e := p.writerTurn.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turn writer")
			err = e
		}
	}
	return err
}
