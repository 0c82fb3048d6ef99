package generation

import (
	"context"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ai-voice-gateway/internal/models"
)

// AnthropicBackend streams messages from the Anthropic API.
type AnthropicBackend struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicBackend creates an AnthropicBackend. MaxTokens is required by
// the API and defaults to 1024.
func NewAnthropicBackend(apiKey, baseURL, model string, maxTokens int, temperature float64) *AnthropicBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicBackend{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Name implements Backend.
func (p *AnthropicBackend) Name() string { return "anthropic" }

// Stream implements Backend. System messages are merged into the request's
// system prompt.
func (p *AnthropicBackend) Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		system, msgs := anthropicMessages(messages)
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			Messages:  msgs,
			MaxTokens: int64(p.maxTokens),
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		if p.temperature > 0 {
			params.Temperature = anthropic.Float(p.temperature)
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if !yield(delta.Text, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", err)
		}
	}
}

func anthropicMessages(messages []models.Message) (string, []anthropic.MessageParam) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, msg.Content)
		case models.RoleAssistant:
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
			})
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return strings.Join(system, "\n\n"), out
}
