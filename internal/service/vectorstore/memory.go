package vectorstore

import (
	"context"
	"sort"
	"sync"

	"ai-voice-gateway/internal/models"
)

// MemoryIndex is an in-process Index using brute-force cosine similarity.
// It suits development and tests; contents are lost on restart.
type MemoryIndex struct {
	mu     sync.RWMutex
	dim    int
	chunks []models.DocumentChunk
}

// NewMemoryIndex creates an empty index. A dim of 0 adopts the dimension of
// the first chunk added.
func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim}
}

// Add implements Index.
func (m *MemoryIndex) Add(ctx context.Context, chunk models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim == 0 {
		m.dim = len(chunk.Embedding)
	}
	if len(chunk.Embedding) != m.dim {
		return ErrDimensionMismatch
	}
	m.chunks = append(m.chunks, chunk)
	return nil
}

// Query implements Index.
func (m *MemoryIndex) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.chunks) == 0 {
		return nil, nil
	}
	if len(embedding) != m.dim {
		return nil, ErrDimensionMismatch
	}

	results := make([]models.RetrievalResult, 0, len(m.chunks))
	for _, c := range m.chunks {
		results = append(results, models.RetrievalResult{
			ChunkID: c.ID,
			Text:    c.Text,
			Score:   cosine(embedding, c.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count implements Index.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// Close implements Index.
func (m *MemoryIndex) Close() error { return nil }
