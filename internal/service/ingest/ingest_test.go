package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type added struct {
	text     string
	metadata map[string]string
}

type fakeStore struct {
	mu    sync.Mutex
	added []added
	err   error
}

func (f *fakeStore) Add(ctx context.Context, text string, metadata map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.added = append(f.added, added{text: text, metadata: metadata})
	return fmt.Sprintf("id-%d", len(f.added)), nil
}

func (f *fakeStore) Added() []added {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]added(nil), f.added...)
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestChunkWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{"empty", "   ", 3, nil},
		{"single chunk", "a b  c", 3, []string{"a b c"}},
		{"split", "a b c d e", 2, []string{"a b", "c d", "e"}},
		{"newlines collapse", "a\nb\tc", 5, []string{"a b c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkWords(tt.text, tt.size))
		})
	}
}

func TestChunkWords_DefaultSize(t *testing.T) {
	chunks := ChunkWords(words(2500), 0)
	require.Len(t, chunks, 3)
	assert.Len(t, strings.Fields(chunks[0]), 1000)
	assert.Len(t, strings.Fields(chunks[2]), 500)
}

func TestIngest_SavesAndStores(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	ing := New(store, Config{UploadDir: dir, ChunkWords: 2})

	report, err := ing.Ingest(context.Background(), OriginSession, "faq.txt", []byte("refunds take fourteen days"))
	require.NoError(t, err)

	assert.Equal(t, "faq.txt", report.Source)
	assert.Equal(t, []string{"id-1", "id-2"}, report.IDs)
	assert.Equal(t, 2, report.Chunks())

	got := store.Added()
	require.Len(t, got, 2)
	assert.Equal(t, "refunds take", got[0].text)
	assert.Equal(t, map[string]string{"source": "faq.txt", "chunk": "0"}, got[0].metadata)
	assert.Equal(t, map[string]string{"source": "faq.txt", "chunk": "1"}, got[1].metadata)

	saved, err := os.ReadFile(filepath.Join(dir, "faq.txt"))
	require.NoError(t, err)
	assert.Equal(t, "refunds take fourteen days", string(saved))
}

func TestIngest_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		maxBytes int64
		wantErr  error
	}{
		{"path traversal", "../etc/passwd.txt", []byte("x"), 0, ErrInvalidFilename},
		{"nested path", "dir/a.txt", []byte("x"), 0, ErrInvalidFilename},
		{"hidden", ".env.txt", []byte("x"), 0, ErrInvalidFilename},
		{"missing name", "", []byte("x"), 0, ErrInvalidFilename},
		{"extension", "run.sh", []byte("x"), 0, ErrExtensionNotAllowed},
		{"too large", "big.txt", []byte("12345"), 4, ErrTooLarge},
		{"empty data", "a.txt", nil, 0, ErrEmptyDocument},
		{"whitespace only", "a.txt", []byte("  \n "), 0, ErrEmptyDocument},
		{"binary", "a.txt", []byte{0xff, 0xfe, 0x00}, 0, ErrNotText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			ing := New(store, Config{UploadDir: t.TempDir(), MaxFileBytes: tt.maxBytes})

			_, err := ing.Ingest(context.Background(), OriginREST, tt.filename, tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.Added())
		})
	}
}

func TestIngest_ExtensionCaseInsensitive(t *testing.T) {
	ing := New(&fakeStore{}, Config{UploadDir: t.TempDir(), AllowedExtensions: []string{".MD"}})

	_, err := ing.Ingest(context.Background(), OriginREST, "Notes.md", []byte("hello world"))
	assert.NoError(t, err)
}

func TestAddChunks_StoreError(t *testing.T) {
	boom := errors.New("store down")
	ing := New(&fakeStore{err: boom}, Config{})

	_, err := ing.AddChunks(context.Background(), "doc", []string{"one"})
	assert.ErrorIs(t, err, boom)
}

func TestAddChunks_SkipsBlank(t *testing.T) {
	store := &fakeStore{}
	ing := New(store, Config{})

	report, err := ing.AddChunks(context.Background(), "doc", []string{"one", " ", "three"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Chunks())
	got := store.Added()
	assert.Equal(t, "2", got[1].metadata["chunk"])
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# Guide\nstep one"), 0o644))

	store := &fakeStore{}
	report, err := New(store, Config{}).IngestFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "guide.md", report.Source)
	assert.Equal(t, "# Guide step one", store.Added()[0].text)
}

func TestWatcher_IngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	ing := New(store, Config{})

	w, err := NewWatcher(ing, dir, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("watched words"), 0o644))

	require.Eventually(t, func() bool {
		return len(store.Added()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := store.Added()
	assert.Equal(t, "watched words", got[0].text)
	assert.Equal(t, "notes.txt", got[0].metadata["source"])
}

func TestWatcher_MissingDir(t *testing.T) {
	_, err := NewWatcher(New(&fakeStore{}, Config{}), filepath.Join(t.TempDir(), "missing"), 0)
	assert.Error(t, err)
}
