// Conversation Tail - prints conversation events as they are published.
// Consumes the transcript and turn topics and renders one line per event.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"ai-voice-gateway/internal/models"
)

// envelope holds the union of fields across published event types.
type envelope struct {
	EventType   string      `json:"eventType"`
	SessionID   string      `json:"sessionId"`
	UtteranceID string      `json:"utteranceId"`
	Timestamp   int64       `json:"timestamp"`
	Text        string      `json:"text"`
	Role        models.Role `json:"role"`
	Index       int         `json:"index"`
	Outcome     string      `json:"outcome"`
	LatencyMs   int64       `json:"latencyMs"`
	Reason      string      `json:"reason"`
	Turns       int         `json:"turns"`
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func format(ev envelope) string {
	ts := time.UnixMilli(ev.Timestamp).Format("15:04:05")
	switch ev.EventType {
	case models.EventTranscriptFinal:
		return fmt.Sprintf("%s [%s] 🎤 %s", ts, ev.SessionID, ev.Text)
	case models.EventTurnAppended:
		line := fmt.Sprintf("%s [%s] #%d %s: %s", ts, ev.SessionID, ev.Index, ev.Role, truncate(ev.Text, 120))
		if ev.Outcome != "" && ev.Outcome != "completed" {
			line += " (" + ev.Outcome + ")"
		}
		if ev.LatencyMs > 0 {
			line += fmt.Sprintf(" %dms", ev.LatencyMs)
		}
		return line
	case models.EventSessionClosed:
		return fmt.Sprintf("%s [%s] 🛑 closed: %s after %d turns", ts, ev.SessionID, ev.Reason, ev.Turns)
	default:
		return fmt.Sprintf("%s [%s] %s", ts, ev.SessionID, ev.EventType)
	}
}

func consume(ctx context.Context, brokers []string, topic, session string, since time.Duration, out chan<- envelope) {
	// Partition reader without a consumer group so every tail sees everything.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Printf("Seek on %s failed, reading from current offset: %v", topic, err)
	}

	log.Printf("Consuming from Kafka topic: %s partition 0 (last %s)", topic, since)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		var ev envelope
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}
		if session != "" && ev.SessionID != session {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicTranscript := flag.String("topic-transcript", "conversation.transcript.final", "Final transcript topic")
	topicTurn := flag.String("topic-turn", "conversation.turn", "Turn topic")
	session := flag.String("session", "", "Only show this session ID")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	list := strings.Split(*brokers, ",")
	events := make(chan envelope, 100)
	go consume(ctx, list, *topicTranscript, *session, *since, events)
	go consume(ctx, list, *topicTurn, *session, *since, events)

	for {
		select {
		case <-ctx.Done():
			os.Exit(0)
		case ev := <-events:
			fmt.Println(format(ev))
		}
	}
}
