package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"ai-voice-gateway/internal/models"
)

// OllamaBackend streams from an Ollama server's /api/chat endpoint.
type OllamaBackend struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
}

// NewOllamaBackend creates an OllamaBackend. The HTTP client has no overall
// timeout: streams are bounded by the caller's context.
func NewOllamaBackend(baseURL, model string) *OllamaBackend {
	return &OllamaBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// Name implements Backend.
func (o *OllamaBackend) Name() string { return "ollama" }

// Stream implements Backend. The response body is newline-delimited JSON,
// one object per delta, ending with done=true.
func (o *OllamaBackend) Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := o.open(ctx, messages)
		if err != nil {
			yield("", err)
			return
		}
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var resp ollamaChatResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				yield("", fmt.Errorf("decode stream: %w", err))
				return
			}
			if resp.Error != "" {
				yield("", errors.New(resp.Error))
				return
			}
			if resp.Message.Content != "" && !yield(resp.Message.Content, nil) {
				return
			}
			if resp.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("read stream: %w", err))
			return
		}
		yield("", io.ErrUnexpectedEOF)
	}
}

func (o *OllamaBackend) open(ctx context.Context, messages []models.Message) (io.ReadCloser, error) {
	reqPayload := ollamaChatRequest{
		Model:    o.Model,
		Messages: make([]ollamaMessage, len(messages)),
		Stream:   true,
	}
	for i, msg := range messages {
		reqPayload.Messages[i] = ollamaMessage{Role: string(msg.Role), Content: msg.Content}
	}
	if o.Temperature > 0 || o.MaxTokens > 0 {
		reqPayload.Options = &ollamaOptions{Temperature: o.Temperature, NumPredict: o.MaxTokens}
	}

	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return resp.Body, nil
}
