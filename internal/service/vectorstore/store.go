// Package vectorstore is the client for similarity search over embedded
// document chunks. A Client pairs an Embedder with an Index; the index is
// shared read-only by all sessions and written only through Add.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"ai-voice-gateway/internal/models"
)

// CollectionName is the table/collection holding document chunks.
const CollectionName = "rag_docs"

var (
	// ErrDimensionMismatch is returned when an embedding does not match the index.
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")

	// ErrEmptyText is returned by Add for blank chunks.
	ErrEmptyText = errors.New("vectorstore: empty text")
)

// Embedder turns text into an embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index stores embedded chunks and answers nearest-neighbour queries.
// Query returns at most k results ordered by descending score.
type Index interface {
	Add(ctx context.Context, chunk models.DocumentChunk) error
	Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Client is the Vector Store Client used by retrieval and ingestion.
type Client struct {
	embedder Embedder
	index    Index
}

// NewClient creates a Client.
func NewClient(embedder Embedder, index Index) *Client {
	return &Client{embedder: embedder, index: index}
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

// Query returns the top k chunks most similar to embedding, by descending score.
func (c *Client) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}
	results, err := c.index.Query(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", CollectionName, err)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Add embeds text and stores it with metadata, returning the new chunk id.
func (c *Client) Add(ctx context.Context, text string, metadata map[string]string) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	vec, err := c.Embed(ctx, text)
	if err != nil {
		return "", err
	}
	chunk := models.DocumentChunk{
		ID:        uuid.NewString(),
		Text:      text,
		Metadata:  metadata,
		Embedding: vec,
	}
	if err := c.index.Add(ctx, chunk); err != nil {
		return "", fmt.Errorf("add to %s: %w", CollectionName, err)
	}
	return chunk.ID, nil
}

// Count returns the number of stored chunks.
func (c *Client) Count(ctx context.Context) (int, error) {
	return c.index.Count(ctx)
}

// Close releases the index.
func (c *Client) Close() error {
	return c.index.Close()
}

// normalize scales vec to unit length; zero vectors are returned unchanged.
func normalize(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)
	if magnitude == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / magnitude)
	}
	return out
}

// cosine returns the cosine similarity of a and b, or 0 when either is zero.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
