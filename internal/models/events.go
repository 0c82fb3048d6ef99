package models

// Event types published to Kafka.
const (
	EventTranscriptFinal = "conversation.transcript.final"
	EventTurnAppended    = "conversation.turn.appended"
	EventSessionClosed   = "conversation.session.closed"
)

// TranscriptFinalEvent is published for every non-empty Final transcript fragment.
type TranscriptFinalEvent struct {
	EventType   string `json:"eventType" validate:"required"`
	SessionID   string `json:"sessionId" validate:"required"`
	UtteranceID string `json:"utteranceId" validate:"required"`
	Timestamp   int64  `json:"timestamp"`
	Text        string `json:"text" validate:"required"`
	FullText    string `json:"fullText"`
}

// TurnAppendedEvent is published whenever a Turn is appended to a session.
type TurnAppendedEvent struct {
	EventType string `json:"eventType" validate:"required"`
	SessionID string `json:"sessionId" validate:"required"`
	Index     int    `json:"index"`
	Timestamp int64  `json:"timestamp"`
	Role      Role   `json:"role" validate:"required,oneof=user assistant"`
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

// SessionClosedEvent is published when a session reaches the Closed state.
type SessionClosedEvent struct {
	EventType string `json:"eventType" validate:"required"`
	SessionID string `json:"sessionId" validate:"required"`
	Timestamp int64  `json:"timestamp"`
	Reason    string `json:"reason"`
	Turns     int    `json:"turns"`
}
