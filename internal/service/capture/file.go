package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"ai-voice-gateway/internal/models"
)

// FileDevice replays a PCM WAV file as if it were a microphone: frames are
// paced at the file's byte rate and, once the samples run out, zeroed
// silence frames are produced until the handle is released.
type FileDevice struct {
	path       string
	frameBytes int
	format     WAVFormat
	interval   time.Duration
	token      chan struct{}
}

// NewFileDevice validates the WAV file at path and returns a device that
// reads frameBytes per frame.
func NewFileDevice(path string, frameBytes int) (*FileDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	format, err := ReadWAVHeader(f)
	if err != nil {
		return nil, err
	}
	if frameBytes <= 0 {
		frameBytes = 4096
	}

	var interval time.Duration
	if bps := format.BytesPerSecond(); bps > 0 {
		interval = time.Duration(frameBytes) * time.Second / time.Duration(bps)
	}

	return &FileDevice{
		path:       path,
		frameBytes: frameBytes,
		format:     format,
		interval:   interval,
		token:      make(chan struct{}, 1),
	}, nil
}

// Format returns the PCM layout of the replayed file.
func (d *FileDevice) Format() WAVFormat {
	return d.format
}

// Acquire opens the file for one replay. It fails with ErrDeviceBusy while
// another session holds the device.
func (d *FileDevice) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case d.token <- struct{}{}:
	default:
		return nil, ErrDeviceBusy
	}

	f, err := os.Open(d.path)
	if err != nil {
		<-d.token
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	if _, err := ReadWAVHeader(f); err != nil {
		f.Close()
		<-d.token
		return nil, err
	}

	return &fileHandle{
		device:  d,
		file:    f,
		samples: io.LimitReader(f, int64(d.format.DataSize)),
		next:    time.Now(),
	}, nil
}

type fileHandle struct {
	device  *FileDevice
	file    *os.File
	samples io.Reader
	eof     bool
	seq     uint64
	next    time.Time

	mu       sync.Mutex
	released bool
}

func (h *fileHandle) ReadFrame(ctx context.Context) (models.AudioFrame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return models.AudioFrame{}, ErrReleased
	}

	if wait := time.Until(h.next); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return models.AudioFrame{}, ctx.Err()
		}
	}
	h.next = h.next.Add(h.device.interval)

	buf := make([]byte, h.device.frameBytes)
	if !h.eof {
		n, err := io.ReadFull(h.samples, buf)
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			h.eof = true
			clear(buf[n:])
		case err != nil:
			return models.AudioFrame{}, fmt.Errorf("read capture file: %w", err)
		}
	}

	h.seq++
	return models.AudioFrame{Seq: h.seq, Data: buf}, nil
}

func (h *fileHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	h.file.Close()
	<-h.device.token
}
