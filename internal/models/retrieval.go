package models

// RetrievalResult is one scored hit from a similarity search.
type RetrievalResult struct {
	ChunkID string  `json:"chunkId"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// DocumentChunk is an embedded document fragment held by the vector store.
type DocumentChunk struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float32
}
