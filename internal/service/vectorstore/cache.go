package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"ai-voice-gateway/internal/observability/metrics"
)

// CachedEmbedder memoizes embeddings by text hash. Repeated utterances and
// re-ingested chunks skip the embedding backend.
type CachedEmbedder struct {
	next    Embedder
	cache   *cache.Cache
	metrics *metrics.Metrics
}

// NewCachedEmbedder wraps next with a TTL cache. A ttl <= 0 disables expiry.
func NewCachedEmbedder(next Embedder, ttl time.Duration) *CachedEmbedder {
	cleanup := 2 * ttl
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &CachedEmbedder{
		next:    next,
		cache:   cache.New(ttl, cleanup),
		metrics: metrics.DefaultMetrics,
	}
}

// Embed implements Embedder. Errors are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.RecordEmbeddingCache(true)
		return v.([]float32), nil
	}
	c.metrics.RecordEmbeddingCache(false)

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, vec)
	return vec, nil
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.ItemCount()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
