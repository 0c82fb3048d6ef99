package ingest

import "strings"

// DefaultChunkWords is the chunk size used when none is configured.
const DefaultChunkWords = 1000

// ChunkWords splits text into chunks of at most size whitespace-separated
// words. Whitespace inside a chunk is collapsed to single spaces.
func ChunkWords(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkWords
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(words)+size-1)/size)
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
