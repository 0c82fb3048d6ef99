// Package protocol defines the JSON wire protocol spoken over the websocket:
// inbound client actions and outbound server events.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"ai-voice-gateway/internal/schema"
)

// Inbound action names.
const (
	ActionStartListening = "start_listening"
	ActionSendText       = "send_text"
	ActionUploadFile     = "upload_file"
	ActionExit           = "exit"
)

// ErrorKind classifies a protocol error.
type ErrorKind string

const (
	KindMalformed     ErrorKind = "malformed"
	KindUnknownAction ErrorKind = "unknown_action"
	KindMissingField  ErrorKind = "missing_field"
	KindInvalidField  ErrorKind = "invalid_field"
)

// ParseError is a recoverable protocol error: the offending message is reported
// to the client and the session continues.
type ParseError struct {
	Kind   ErrorKind
	Action string
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s (action %q)", e.Msg, e.Action)
	}
	return e.Msg
}

// Inbound is a decoded client message. The set of implementations is closed:
// StartListening, SendText, UploadFile, Exit and Invalid.
type Inbound interface {
	Action() string
	inbound()
}

// StartListening asks the session to capture and transcribe voice input.
type StartListening struct{}

// SendText submits a typed user message.
type SendText struct {
	Text string
}

// UploadFile submits a document for ingestion into the vector store.
type UploadFile struct {
	Filename string
	FileData []byte
}

// Exit asks the session to close.
type Exit struct{}

// Invalid carries a message that could not be decoded. It is queued like any
// other message so that errors are reported in arrival order.
type Invalid struct {
	Err error
}

func (StartListening) Action() string { return ActionStartListening }
func (SendText) Action() string       { return ActionSendText }
func (UploadFile) Action() string     { return ActionUploadFile }
func (Exit) Action() string           { return ActionExit }
func (Invalid) Action() string        { return "" }

func (StartListening) inbound() {}
func (SendText) inbound()       {}
func (UploadFile) inbound()     {}
func (Exit) inbound()           {}
func (Invalid) inbound()        {}

type envelope struct {
	Action   *string         `json:"action" validate:"required"`
	Text     *string         `json:"text"`
	Filename string          `json:"filename"`
	FileData json.RawMessage `json:"file_data"`
}

type sendTextPayload struct {
	Text *string `json:"text" validate:"required"`
}

type uploadFilePayload struct {
	Filename string `json:"filename" validate:"required,max=255"`
	FileData []byte `json:"file_data" validate:"required"`
}

// Parse decodes a single text frame into an Inbound action. Any failure is
// returned as a *ParseError.
func Parse(data []byte) (Inbound, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&env); err != nil {
		return nil, &ParseError{Kind: KindMalformed, Msg: "unparseable payload: " + err.Error()}
	}
	if err := schema.Validate(env); err != nil {
		return nil, fieldError(err, "")
	}

	switch action := *env.Action; action {
	case ActionStartListening:
		return StartListening{}, nil

	case ActionSendText:
		p := sendTextPayload{Text: env.Text}
		if err := schema.Validate(p); err != nil {
			return nil, fieldError(err, action)
		}
		return SendText{Text: *p.Text}, nil

	case ActionUploadFile:
		p := uploadFilePayload{Filename: env.Filename}
		if len(env.FileData) > 0 && !bytes.Equal(env.FileData, []byte("null")) {
			if err := json.Unmarshal(env.FileData, &p.FileData); err != nil {
				return nil, &ParseError{Kind: KindInvalidField, Action: action, Msg: `field "file_data" must be base64 or a byte array`}
			}
		}
		if err := schema.Validate(p); err != nil {
			return nil, fieldError(err, action)
		}
		return UploadFile{Filename: p.Filename, FileData: p.FileData}, nil

	case ActionExit:
		return Exit{}, nil

	default:
		return nil, &ParseError{Kind: KindUnknownAction, Action: action, Msg: "unknown action"}
	}
}

func fieldError(err error, action string) *ParseError {
	var fe *schema.FieldError
	if errors.As(err, &fe) && fe.Tag == "required" {
		return &ParseError{Kind: KindMissingField, Action: action, Msg: fe.Error()}
	}
	return &ParseError{Kind: KindInvalidField, Action: action, Msg: err.Error()}
}

// ErrorKindOf returns the protocol error kind of err, or KindMalformed when
// err is not a *ParseError.
func ErrorKindOf(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindMalformed
}
