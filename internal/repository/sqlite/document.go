package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/service"
)

const documentColumns = `d.id, d.content, d.source, d.chunk_type, d.metadata, d.created_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func NewDocumentRepositoryWithTx(tx *sql.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, c *domain.Chunk) error {
	meta, err := domain.EncodeMetadata(c.Metadata)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (content, source, chunk_type, metadata, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Content, c.Source, string(c.ChunkType), meta, c.Category(), c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Chunk, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+`, e.embedding
		 FROM documents d
		 LEFT JOIN embeddings e ON e.document_id = d.id
		 WHERE d.id = ?`,
		id,
	)
	c, err := scanChunk(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *DocumentRepository) List(ctx context.Context, filter service.ListFilter) ([]*domain.Chunk, error) {
	var (
		where []string
		args  []any
	)
	if filter.Source != "" {
		where = append(where, "d.source = ?")
		args = append(args, filter.Source)
	}
	if filter.Category != "" {
		where = append(where, "d.category = ?")
		args = append(args, filter.Category)
	}
	if filter.AfterID > 0 {
		where = append(where, "d.id > ?")
		args = append(args, filter.AfterID)
	}

	query := `SELECT ` + documentColumns + ` FROM documents d`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY d.id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows, false)
}

func (r *DocumentRepository) ListWithEmbeddings(ctx context.Context, source string) ([]*domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+`, e.embedding
		 FROM documents d
		 JOIN embeddings e ON e.document_id = d.id
		 WHERE ? = '' OR d.source = ?
		 ORDER BY d.id`,
		source, source,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows, true)
}

func (r *DocumentRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{
		ByChunkType: make(map[domain.ChunkType]int64),
		BySource:    make(map[string]int64),
		ByCategory:  make(map[string]int64),
	}

	rows, err := r.db.QueryContext(ctx, `SELECT chunk_type, source, category, COUNT(*) FROM documents GROUP BY chunk_type, source, category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chunkType string
			source    string
			category  string
			n         int64
		)
		if err := rows.Scan(&chunkType, &source, &category, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		stats.ByChunkType[domain.ChunkType(chunkType)] += n
		stats.BySource[source] += n
		if category != "" {
			stats.ByCategory[category] += n
		}
	}
	return stats, rows.Err()
}

func (r *DocumentRepository) Sources(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT source FROM documents ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *DocumentRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChunk(row scanner, withEmbedding bool) (*domain.Chunk, error) {
	var (
		c         domain.Chunk
		chunkType string
		meta      string
		createdAt string
		blob      []byte
	)
	dest := []any{&c.ID, &c.Content, &c.Source, &chunkType, &meta, &createdAt}
	if withEmbedding {
		dest = append(dest, &blob)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	metadata, err := domain.DecodeMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("decode metadata of document %d: %w", c.ID, err)
	}
	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of document %d: %w", c.ID, err)
	}
	c.ChunkType = domain.ChunkType(chunkType)
	c.Metadata = metadata
	if blob != nil {
		c.Embedding, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding of document %d: %w", c.ID, err)
		}
	}
	return &c, nil
}

func scanChunkRows(rows *sql.Rows, withEmbedding bool) ([]*domain.Chunk, error) {
	chunks := []*domain.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows, withEmbedding)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
