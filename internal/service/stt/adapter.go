// Package stt defines the interface for streaming Speech-to-Text engines.
package stt

import "context"

// Callback receives transcript results from the STT engine. Callbacks may be
// invoked from an engine goroutine and must not block.
type Callback interface {
	// OnPartial is called when an interim/partial transcript is received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received.
	OnFinal(text string, confidence float64)

	// OnEndOfUtterance is called when the engine detects the speaker stopped.
	OnEndOfUtterance()

	// OnError is called when an error occurs during transcription.
	OnError(err error)
}

// Adapter is one streaming recognition session (Google, mock, ...).
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the STT engine.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}

// Provider creates recognition sessions. A Provider is shared by all
// sessions; each call to NewAdapter returns an independent Adapter.
type Provider interface {
	Name() string
	NewAdapter() Adapter
}
