// Package capture provides exclusive access to audio capture devices.
//
// A Device hands out at most one Handle at a time. The holder reads fixed
// frames with ReadFrame and must call Release on every exit path; Release is
// idempotent.
package capture

import (
	"context"
	"errors"

	"ai-voice-gateway/internal/models"
)

var (
	// ErrOverflow is returned once when the device dropped frames because the
	// reader fell behind. It is recoverable: the caller retries the read.
	ErrOverflow = errors.New("capture: device overflow")

	// ErrReadTimeout is returned when no frame arrived within the device read bound.
	ErrReadTimeout = errors.New("capture: read timeout")

	// ErrDeviceBusy is returned by Acquire while another handle is outstanding.
	ErrDeviceBusy = errors.New("capture: device busy")

	// ErrReleased is returned by ReadFrame after Release.
	ErrReleased = errors.New("capture: handle released")
)

// Device is a source of audio frames that can be held by one session at a time.
type Device interface {
	Acquire(ctx context.Context) (Handle, error)
}

// Handle is exclusive, scoped access to a Device.
type Handle interface {
	ReadFrame(ctx context.Context) (models.AudioFrame, error)
	Release()
}

// IsRecoverable reports whether a ReadFrame error should be retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrOverflow) || errors.Is(err, ErrReadTimeout)
}
