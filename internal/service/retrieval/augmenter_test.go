package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-voice-gateway/internal/models"
)

type fakeStore struct {
	results  []models.RetrievalResult
	embedErr error
	queryErr error
	block    bool
	gotK     int
}

func (f *fakeStore) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0}, nil
}

func (f *fakeStore) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	f.gotK = k
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.results, nil
}

func TestAugment_EmptyStoreHello(t *testing.T) {
	a := New(&fakeStore{}, Config{})

	res := a.Augment(context.Background(), "hello", nil, 0)

	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hello"}}, res.Messages)
	assert.Empty(t, res.ResultsUsed)
	assert.False(t, res.Degraded)
}

func TestAugment_WithContext(t *testing.T) {
	store := &fakeStore{results: []models.RetrievalResult{
		{ChunkID: "a", Text: "Refunds take 14 days.", Score: 0.9},
		{ChunkID: "b", Text: "Shipping is free.", Score: 0.5},
	}}
	a := New(store, Config{})
	history := []models.Turn{
		{Role: models.RoleUser, Text: "hi"},
		{Role: models.RoleAssistant, Text: "hello!"},
	}

	res := a.Augment(context.Background(), "refund policy?", history, 0)

	require.Len(t, res.Messages, 4)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "hi"}, res.Messages[0])
	assert.Equal(t, models.Message{Role: models.RoleAssistant, Content: "hello!"}, res.Messages[1])
	assert.Equal(t, models.RoleSystem, res.Messages[2].Role)
	assert.True(t, strings.HasPrefix(res.Messages[2].Content, ContextHeader))
	assert.Contains(t, res.Messages[2].Content, "Refunds take 14 days.\n\nShipping is free.")
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "refund policy?"}, res.Messages[3])
	assert.Len(t, res.ResultsUsed, 2)
	assert.Equal(t, DefaultTopK, store.gotK)
}

func TestAugment_ExplicitK(t *testing.T) {
	store := &fakeStore{results: []models.RetrievalResult{
		{ChunkID: "a", Text: "one", Score: 0.9},
		{ChunkID: "b", Text: "two", Score: 0.8},
	}}
	a := New(store, Config{TopK: 5})

	res := a.Augment(context.Background(), "q", nil, 1)

	assert.Equal(t, 1, store.gotK)
	assert.Len(t, res.ResultsUsed, 1)
}

func TestAugment_MinScore(t *testing.T) {
	store := &fakeStore{results: []models.RetrievalResult{
		{ChunkID: "a", Text: "close", Score: 0.9},
		{ChunkID: "b", Text: "far", Score: 0.1},
	}}
	a := New(store, Config{MinScore: 0.5})

	res := a.Augment(context.Background(), "q", nil, 0)

	require.Len(t, res.ResultsUsed, 1)
	assert.Equal(t, "a", res.ResultsUsed[0].ChunkID)
}

func TestAugment_Degraded(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
		cfg   Config
	}{
		{"embed fails", &fakeStore{embedErr: errors.New("embedder down")}, Config{}},
		{"query fails", &fakeStore{queryErr: errors.New("index unreachable")}, Config{}},
		{"timeout", &fakeStore{block: true}, Config{Timeout: 10 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.store, tt.cfg)

			res := a.Augment(context.Background(), "hello", nil, 0)

			assert.True(t, res.Degraded)
			assert.Empty(t, res.ResultsUsed)
			assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hello"}}, res.Messages)
		})
	}
}

func TestAugment_NilStore(t *testing.T) {
	a := New(nil, Config{})

	res := a.Augment(context.Background(), "hello", []models.Turn{{Role: models.RoleUser, Text: "earlier"}}, 0)

	assert.Len(t, res.Messages, 2)
	assert.False(t, res.Degraded)
}
