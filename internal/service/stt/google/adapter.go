// Package google provides a Google Cloud Speech-to-Text streaming engine.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-voice-gateway/internal/observability/metrics"
	"ai-voice-gateway/internal/service/stt"
)

// Config holds recognition parameters sent with every stream.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns recognition defaults for 16kHz LINEAR16 mono audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// Provider owns a shared Speech client. Each session gets its own
// streaming recognition via NewAdapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Provider struct {
	client *speech.Client
	cfg    Config
}

// NewProvider dials the Speech API.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Provider{client: c, cfg: cfg}, nil
}

// Name identifies the engine in logs and metrics.
func (p *Provider) Name() string { return "google" }

// NewAdapter returns an unstarted streaming session.
func (p *Provider) NewAdapter() stt.Adapter {
	return &Adapter{client: p.client, cfg: p.cfg, metrics: metrics.DefaultMetrics}
}

// Close releases the shared client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client  *speech.Client
	cfg     Config
	metrics *metrics.Metrics

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	cb     stt.Callback
	closed bool
	done   chan struct{}
}

// Start opens a streaming recognition, sends the config and starts
// delivering results to cb from a background goroutine.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz: int32(a.cfg.SampleRateHz),
					LanguageCode:    a.cfg.LanguageCode,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.stream = stream
	a.cb = cb
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.listen(ctx)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream, closed := a.stream, a.closed
	a.mu.Unlock()
	if closed || stream == nil {
		return nil
	}

	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream. Results still in flight are dropped.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	stream := a.stream
	a.mu.Unlock()

	if stream != nil {
		return stream.CloseSend()
	}
	return nil
}

// listen receives transcript responses from Google and invokes callbacks.
func (a *Adapter) listen(ctx context.Context) {
	defer close(a.done)

	for {
		resp, err := a.stream.Recv()
		if err != nil {
			a.handleRecvError(ctx, err)
			return
		}
		if a.isClosed() {
			continue
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			if r.IsFinal {
				a.cb.OnFinal(alt.Transcript, float64(alt.Confidence))
			} else {
				a.cb.OnPartial(alt.Transcript)
			}
		}

		if resp.SpeechEventType == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			a.cb.OnEndOfUtterance()
		}
	}
}

func (a *Adapter) handleRecvError(ctx context.Context, err error) {
	if errors.Is(err, io.EOF) {
		return
	}

	code := status.Code(err)
	if code == codes.Canceled && ctx.Err() != nil {
		return
	}

	a.metrics.RecordSTTError("google", code.String())
	log.Warn().Err(err).Str("code", code.String()).Msg("Google STT stream error")

	if !a.isClosed() {
		a.cb.OnError(err)
	}
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// parseAudioEncoding maps an upper-case encoding name to the API enum,
// falling back to LINEAR16.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch name {
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
