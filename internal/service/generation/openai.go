package generation

import (
	"context"
	"iter"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ai-voice-gateway/internal/models"
)

// OpenAIBackend streams chat completions from OpenAI or any
// OpenAI-compatible server.
type OpenAIBackend struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIBackend creates an OpenAIBackend. An empty baseURL uses the
// public API.
func NewOpenAIBackend(apiKey, baseURL, model string, maxTokens int, temperature float64) *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Name implements Backend.
func (p *OpenAIBackend) Name() string { return "openai" }

// Stream implements Backend.
func (p *OpenAIBackend) Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(p.model),
			Messages: openAIMessages(messages),
		}
		if p.maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(p.maxTokens))
		}
		if p.temperature > 0 {
			params.Temperature = openai.Float(p.temperature)
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", err)
		}
	}
}

func openAIMessages(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
