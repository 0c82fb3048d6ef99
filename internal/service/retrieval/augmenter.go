// Package retrieval assembles grounded prompts from conversation history and
// the chunks most similar to the user's query.
package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ai-voice-gateway/internal/models"
	"ai-voice-gateway/internal/observability/logging"
	"ai-voice-gateway/internal/observability/metrics"
	"ai-voice-gateway/internal/observability/tracing"
)

// DefaultTopK is used when a non-positive k is requested.
const DefaultTopK = 3

// ContextHeader prefixes the retrieved chunks in the synthetic system turn.
const ContextHeader = "Use the following context to answer the user's question. If the context is not relevant, answer from general knowledge."

// Store is the subset of the vector store client the augmenter needs.
type Store interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error)
}

// Config tunes the augmenter.
type Config struct {
	TopK     int
	Timeout  time.Duration
	MinScore float64
}

// Result is a composed prompt plus the chunks that went into it.
type Result struct {
	Messages    []models.Message
	ResultsUsed []models.RetrievalResult
	// Degraded is set when the store failed and the prompt carries no context.
	Degraded bool
}

// Augmenter builds prompts. A nil store yields unaugmented prompts.
type Augmenter struct {
	store   Store
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates an Augmenter.
func New(store Store, cfg Config) *Augmenter {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Augmenter{
		store:   store,
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("retrieval"),
	}
}

// Augment returns history, then an optional system turn with the retrieved
// context, then the query as a user turn. history must not already contain
// the query. A k <= 0 uses the configured default. Store failures degrade the
// result and are never returned.
func (a *Augmenter) Augment(ctx context.Context, query string, history []models.Turn, k int) Result {
	if k <= 0 {
		k = a.cfg.TopK
	}

	results, degraded := a.search(ctx, query, k)

	msgs := models.Messages(history)
	if len(results) > 0 {
		msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: contextMessage(results)})
	}
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: query})

	return Result{Messages: msgs, ResultsUsed: results, Degraded: degraded}
}

func (a *Augmenter) search(ctx context.Context, query string, k int) ([]models.RetrievalResult, bool) {
	if a.store == nil || strings.TrimSpace(query) == "" {
		return nil, false
	}

	ctx, span := tracing.StartSpan(ctx, "retrieval.search", attribute.Int("k", k))
	defer span.End()

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	emb, err := a.store.Embed(ctx, query)
	if err != nil {
		a.degrade(span, "embed", err)
		return nil, true
	}

	results, err := a.store.Query(ctx, emb, k)
	if err != nil {
		a.degrade(span, "query", err)
		return nil, true
	}

	kept := results[:0:0]
	for _, r := range results {
		if r.Score >= a.cfg.MinScore && strings.TrimSpace(r.Text) != "" {
			kept = append(kept, r)
		}
	}
	if len(kept) > k {
		kept = kept[:k]
	}

	a.metrics.RecordRetrieval(len(kept), time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("results", len(kept)))
	return kept, false
}

func (a *Augmenter) degrade(span trace.Span, stage string, err error) {
	a.metrics.RecordRetrievalDegraded(stage)
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
	a.logger.Warn().Err(err).Str("stage", stage).Msg("Retrieval degraded, continuing without context")
}

func contextMessage(results []models.RetrievalResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return ContextHeader + "\n\n" + strings.Join(texts, "\n\n")
}
