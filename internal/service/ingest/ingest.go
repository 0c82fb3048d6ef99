// Package ingest forwards document text into the vector store: uploads from
// sessions and the REST API, files dropped into a watched folder, and
// pre-chunked text.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"ai-voice-gateway/internal/observability/logging"
	"ai-voice-gateway/internal/observability/metrics"
	"ai-voice-gateway/internal/schema"
)

// Origins label where a document came from.
const (
	OriginSession = "session"
	OriginREST    = "rest"
	OriginWatcher = "watcher"
)

var (
	ErrInvalidFilename     = errors.New("invalid filename")
	ErrExtensionNotAllowed = errors.New("file type not allowed")
	ErrTooLarge            = errors.New("file too large")
	ErrNotText             = errors.New("file is not valid UTF-8 text")
	ErrEmptyDocument       = errors.New("document has no text")
)

// Store is the write side of the vector store client.
type Store interface {
	Add(ctx context.Context, text string, metadata map[string]string) (string, error)
}

// Config controls ingestion.
type Config struct {
	UploadDir         string
	ChunkWords        int
	AllowedExtensions []string
	MaxFileBytes      int64
}

// Report summarises one ingested document.
type Report struct {
	Source string
	IDs    []string
}

// Chunks returns the number of chunks stored.
func (r Report) Chunks() int { return len(r.IDs) }

// Ingestor validates documents, saves uploads and forwards chunks to the store.
type Ingestor struct {
	store   Store
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates an Ingestor.
func New(store Store, cfg Config) *Ingestor {
	if cfg.ChunkWords <= 0 {
		cfg.ChunkWords = DefaultChunkWords
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".txt", ".md"}
	}
	exts := make([]string, len(cfg.AllowedExtensions))
	for i, ext := range cfg.AllowedExtensions {
		exts[i] = strings.ToLower(ext)
	}
	cfg.AllowedExtensions = exts
	return &Ingestor{
		store:   store,
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("ingest"),
	}
}

type upload struct {
	Filename string `json:"filename" validate:"required,max=255"`
	Size     int    `json:"size" validate:"gt=0"`
}

// Ingest saves an uploaded file to the upload folder and stores its chunks.
func (i *Ingestor) Ingest(ctx context.Context, origin, filename string, data []byte) (Report, error) {
	report, err := i.ingest(ctx, filename, data)
	i.record(origin, report, err)
	return report, err
}

func (i *Ingestor) ingest(ctx context.Context, filename string, data []byte) (Report, error) {
	if err := schema.Validate(upload{Filename: filename, Size: len(data)}); err != nil {
		var fe *schema.FieldError
		if errors.As(err, &fe) && fe.Field == "size" {
			return Report{}, ErrEmptyDocument
		}
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidFilename, err)
	}
	if err := i.checkFile(filename, int64(len(data))); err != nil {
		return Report{}, err
	}
	if !utf8.Valid(data) {
		return Report{}, ErrNotText
	}

	if err := os.MkdirAll(i.cfg.UploadDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create upload folder: %w", err)
	}
	path := filepath.Join(i.cfg.UploadDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Report{}, fmt.Errorf("save upload: %w", err)
	}
	i.logger.Info().Str("file", filename).Int("bytes", len(data)).Msg("Upload saved")

	return i.AddDocument(ctx, filename, string(data))
}

// IngestFile stores the chunks of a file already on disk.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (Report, error) {
	report, err := i.ingestFile(ctx, path)
	i.record(OriginWatcher, report, err)
	return report, err
}

func (i *Ingestor) ingestFile(ctx context.Context, path string) (Report, error) {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return Report{}, err
	}
	if err := i.checkFile(name, info.Size()); err != nil {
		return Report{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	if !utf8.Valid(data) {
		return Report{}, ErrNotText
	}
	return i.AddDocument(ctx, name, string(data))
}

// AddDocument splits text into word chunks and stores them.
func (i *Ingestor) AddDocument(ctx context.Context, source, text string) (Report, error) {
	return i.AddChunks(ctx, source, ChunkWords(text, i.cfg.ChunkWords))
}

// AddChunks forwards pre-chunked text to the store, one Add per chunk, with
// metadata {source, chunk}. Blank chunks are skipped.
func (i *Ingestor) AddChunks(ctx context.Context, source string, chunks []string) (Report, error) {
	report := Report{Source: source}
	for n, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		id, err := i.store.Add(ctx, chunk, map[string]string{
			"source": source,
			"chunk":  strconv.Itoa(n),
		})
		if err != nil {
			return report, fmt.Errorf("store chunk %d of %s: %w", n, source, err)
		}
		report.IDs = append(report.IDs, id)
	}
	if len(report.IDs) == 0 {
		return report, ErrEmptyDocument
	}
	i.logger.Info().Str("source", source).Int("chunks", len(report.IDs)).Msg("Document ingested")
	return report, nil
}

// Allowed reports whether name has an accepted extension.
func (i *Ingestor) Allowed(name string) bool {
	return slices.Contains(i.cfg.AllowedExtensions, strings.ToLower(filepath.Ext(name)))
}

func (i *Ingestor) checkFile(name string, size int64) error {
	if name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ErrInvalidFilename
	}
	if !i.Allowed(name) {
		return fmt.Errorf("%w: %s", ErrExtensionNotAllowed, filepath.Ext(name))
	}
	if i.cfg.MaxFileBytes > 0 && size > i.cfg.MaxFileBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	return nil
}

func (i *Ingestor) record(origin string, report Report, err error) {
	status := "success"
	if err != nil {
		status = "failed"
		i.logger.Warn().Err(err).Str("origin", origin).Str("source", report.Source).Msg("Ingestion failed")
	}
	i.metrics.RecordDocumentIngested(origin, status, report.Chunks())
}
