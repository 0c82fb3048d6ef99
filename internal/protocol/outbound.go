package protocol

import "encoding/json"

// Outbound event types.
const (
	TypeStatus               = "status"
	TypeTranscription        = "transcription"
	TypePartialTranscription = "partial_transcription"
	TypeResponseChunk        = "response_chunk"
	TypeResponseComplete     = "response_complete"
	TypeFileUploaded         = "file_uploaded"
	TypeError                = "error"
)

// Status messages sent to the client.
const (
	StatusConnected    = "Connected to AI assistant server"
	StatusListening    = "Starting voice recognition..."
	StatusNoSpeech     = "No speech detected"
	StatusProcessing   = "🤖 Processing..."
	StatusSessionEnded = "🛑 Session ended"
)

// Event is a single outbound message. Pointer fields distinguish an empty
// value that must be serialized from an absent one.
type Event struct {
	Type     string  `json:"type"`
	Message  string  `json:"message,omitempty"`
	Text     *string `json:"text,omitempty"`
	FullText *string `json:"full_text,omitempty"`
	Complete *bool   `json:"complete,omitempty"`
	Filename string  `json:"filename,omitempty"`
	Status   string  `json:"status,omitempty"`
}

// Marshal encodes the event as a JSON text frame.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Status(message string) Event {
	return Event{Type: TypeStatus, Message: message}
}

func Transcription(text, fullText string) Event {
	return Event{Type: TypeTranscription, Text: &text, FullText: &fullText}
}

func PartialTranscription(text string) Event {
	return Event{Type: TypePartialTranscription, Text: &text}
}

func ResponseChunk(text string) Event {
	complete := false
	return Event{Type: TypeResponseChunk, Text: &text, Complete: &complete}
}

func ResponseComplete(text string) Event {
	complete := true
	return Event{Type: TypeResponseComplete, Text: &text, Complete: &complete}
}

func FileUploaded(filename, status string) Event {
	return Event{Type: TypeFileUploaded, Filename: filename, Status: status}
}

func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// TextValue returns the event text, or "" when the event carries none.
func (e Event) TextValue() string {
	if e.Text == nil {
		return ""
	}
	return *e.Text
}
