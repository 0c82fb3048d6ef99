package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ai-voice-gateway/internal/models"
)

// ragDoc is the gorm model of the rag_docs table.
type ragDoc struct {
	ID        string            `gorm:"type:text;primaryKey"`
	Content   string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	Embedding pgvector.Vector
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ragDoc) TableName() string {
	return CollectionName
}

// PostgresIndex stores chunks in PostgreSQL with the pgvector extension.
type PostgresIndex struct {
	db  *gorm.DB
	dim int
}

// OpenPostgresIndex connects to dsn and ensures the extension and table exist.
func OpenPostgresIndex(ctx context.Context, dsn string, dim int) (*PostgresIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("postgres index: invalid dimension %d", dim)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	p := &PostgresIndex{db: db, dim: dim}
	if err := p.migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresIndex) migrate(ctx context.Context) error {
	db := p.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata JSONB,
		embedding vector(%d),
		created_at TIMESTAMPTZ DEFAULT now()
	)`, CollectionName, p.dim)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create %s table: %w", CollectionName, err)
	}
	return nil
}

// Add implements Index.
func (p *PostgresIndex) Add(ctx context.Context, chunk models.DocumentChunk) error {
	if len(chunk.Embedding) != p.dim {
		return ErrDimensionMismatch
	}
	metadata := datatypes.JSONMap{}
	for k, v := range chunk.Metadata {
		metadata[k] = v
	}
	doc := ragDoc{
		ID:        chunk.ID,
		Content:   chunk.Text,
		Metadata:  metadata,
		Embedding: pgvector.NewVector(chunk.Embedding),
	}
	return p.db.WithContext(ctx).Create(&doc).Error
}

// Query implements Index. Cosine distance in pgvector is 1 - cosine
// similarity, so the score is 1 - (embedding <=> query).
func (p *PostgresIndex) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievalResult, error) {
	if len(embedding) != p.dim {
		return nil, ErrDimensionMismatch
	}
	type row struct {
		ID      string
		Content string
		Score   float64
	}
	var rows []row

	queryVector := pgvector.NewVector(embedding)
	err := p.db.WithContext(ctx).
		Table(CollectionName).
		Select("id, content, 1 - (embedding <=> ?) AS score", queryVector).
		Order(gorm.Expr("embedding <=> ?", queryVector)).
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]models.RetrievalResult, len(rows))
	for i, r := range rows {
		results[i] = models.RetrievalResult{ChunkID: r.ID, Text: r.Content, Score: r.Score}
	}
	return results, nil
}

// Count implements Index.
func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	var n int64
	err := p.db.WithContext(ctx).Model(&ragDoc{}).Count(&n).Error
	return int(n), err
}

// Close implements Index.
func (p *PostgresIndex) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
