package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"ai-voice-gateway/internal/models"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteIndex persists chunks in SQLite with a sqlite-vec vec0 table for
// cosine search.
type SQLiteIndex struct {
	db  *sql.DB
	dim int
}

// OpenSQLiteIndex opens (creating if needed) the database at path.
func OpenSQLiteIndex(path string, dim int) (*SQLiteIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("sqlite index: invalid dimension %d", dim)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	idx := &SQLiteIndex{db: db, dim: dim}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) initSchema() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE VIRTUAL TABLE IF NOT EXISTS %[1]s_vec USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%[2]d] distance_metric=cosine
		);
	`, CollectionName, s.dim)

	_, err := s.db.Exec(schema)
	return err
}

// Add implements Index.
func (s *SQLiteIndex) Add(ctx context.Context, chunk models.DocumentChunk) error {
	if len(chunk.Embedding) != s.dim {
		return ErrDimensionMismatch
	}
	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	embeddingJSON, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+CollectionName+" (id, content, metadata) VALUES (?, ?, ?)",
		chunk.ID, chunk.Text, string(metadataJSON)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+CollectionName+"_vec (chunk_id, embedding) VALUES (?, ?)",
		chunk.ID, string(embeddingJSON)); err != nil {
		return err
	}
	return tx.Commit()
}

// Query implements Index.
func (s *SQLiteIndex) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	if len(embedding) != s.dim {
		return nil, ErrDimensionMismatch
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}

	query := `
		SELECT v.chunk_id, d.content, vec_distance_cosine(v.embedding, ?) AS distance
		FROM ` + CollectionName + `_vec v
		JOIN ` + CollectionName + ` d ON d.id = v.chunk_id
		ORDER BY distance ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, string(embeddingJSON), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.RetrievalResult
	for rows.Next() {
		var r models.RetrievalResult
		var distance float64
		if err := rows.Scan(&r.ChunkID, &r.Text, &distance); err != nil {
			return nil, err
		}
		r.Score = 1 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count implements Index.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+CollectionName).Scan(&n)
	return n, err
}

// Close implements Index.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
