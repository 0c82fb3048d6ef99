package capture

import (
	"context"
	"sync"
	"time"

	"ai-voice-gateway/internal/models"
	"ai-voice-gateway/internal/observability/metrics"
)

// ClientConfig tunes a ClientStream.
type ClientConfig struct {
	BufferFrames int
	ReadTimeout  time.Duration
}

// ClientStream is a capture device fed by audio the client streams over its
// own connection. Frames arriving while no handle is held are dropped; frames
// arriving faster than the holder reads are dropped and reported once as
// ErrOverflow.
type ClientStream struct {
	readTimeout time.Duration
	metrics     *metrics.Metrics

	mu       sync.Mutex
	frames   chan []byte
	acquired bool
	overflow bool
	seq      uint64
}

// NewClientStream creates a ClientStream with a bounded frame buffer.
func NewClientStream(cfg ClientConfig) *ClientStream {
	if cfg.BufferFrames <= 0 {
		cfg.BufferFrames = 64
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 250 * time.Millisecond
	}
	return &ClientStream{
		readTimeout: cfg.ReadTimeout,
		metrics:     metrics.DefaultMetrics,
		frames:      make(chan []byte, cfg.BufferFrames),
	}
}

// Feed offers one frame of client audio without blocking. It reports whether
// the frame was buffered.
func (c *ClientStream) Feed(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.acquired {
		c.metrics.RecordFrameDropped("not_listening")
		return false
	}

	frame := make([]byte, len(data))
	copy(frame, data)

	select {
	case c.frames <- frame:
		return true
	default:
		if !c.overflow {
			c.metrics.RecordDeviceOverflow()
		}
		c.overflow = true
		c.metrics.RecordFrameDropped("overflow")
		return false
	}
}

// Acquire takes exclusive access to the stream. Frames buffered before the
// call are discarded.
func (c *ClientStream) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acquired {
		return nil, ErrDeviceBusy
	}
	c.drainLocked()
	c.acquired = true
	c.overflow = false
	return &clientHandle{stream: c, released: make(chan struct{})}, nil
}

func (c *ClientStream) drainLocked() {
	for {
		select {
		case <-c.frames:
		default:
			return
		}
	}
}

type clientHandle struct {
	stream *ClientStream

	once     sync.Once
	released chan struct{}
}

func (h *clientHandle) ReadFrame(ctx context.Context) (models.AudioFrame, error) {
	c := h.stream

	select {
	case <-h.released:
		return models.AudioFrame{}, ErrReleased
	default:
	}

	c.mu.Lock()
	if c.overflow {
		c.overflow = false
		c.mu.Unlock()
		return models.AudioFrame{}, ErrOverflow
	}
	c.mu.Unlock()

	timer := time.NewTimer(c.readTimeout)
	defer timer.Stop()

	select {
	case data := <-c.frames:
		c.mu.Lock()
		c.seq++
		seq := c.seq
		c.mu.Unlock()
		return models.AudioFrame{Seq: seq, Data: data}, nil
	case <-timer.C:
		return models.AudioFrame{}, ErrReadTimeout
	case <-h.released:
		return models.AudioFrame{}, ErrReleased
	case <-ctx.Done():
		return models.AudioFrame{}, ctx.Err()
	}
}

func (h *clientHandle) Release() {
	h.once.Do(func() {
		close(h.released)
		c := h.stream
		c.mu.Lock()
		c.acquired = false
		c.overflow = false
		c.drainLocked()
		c.mu.Unlock()
	})
}
