// Package models defines the data structures shared across the gateway:
// conversation turns, audio frames, transcript events, retrieval results and
// the event payloads published to Kafka.
package models

import "time"

// Role identifies the author of a Turn or prompt Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged exchange unit in a session's conversation.
// Turns are immutable once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one entry of a composed prompt sent to a generation backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Messages converts conversation turns into prompt messages, preserving order.
func Messages(turns []Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: t.Role, Content: t.Text})
	}
	return out
}

// GenerationChunk is one incremental unit of assistant output.
type GenerationChunk struct {
	Seq  int
	Text string
}
