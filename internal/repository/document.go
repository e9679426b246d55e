package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const documentColumns = `d.id, d.content, d.source, d.chunk_type, d.metadata, d.created_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, c *domain.Chunk) error {
	meta, err := domain.EncodeMetadata(c.Metadata)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO documents (content, source, chunk_type, metadata, category, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		c.Content, c.Source, string(c.ChunkType), meta, c.Category(), c.CreatedAt,
	).Scan(&c.ID)
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Chunk, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+`, e.embedding::text
		 FROM documents d
		 LEFT JOIN embeddings e ON e.document_id = d.id
		 WHERE d.id = $1`,
		id,
	)
	c, err := scanChunk(row, true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
		args = append(args, filter.Source)
		where = append(where, fmt.Sprintf("d.source = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("d.category = $%d", len(args)))
	}
	if filter.AfterID > 0 {
		args = append(args, filter.AfterID)
		where = append(where, fmt.Sprintf("d.id > $%d", len(args)))
	}

	query := `SELECT ` + documentColumns + ` FROM documents d`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY d.id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows, false)
}

func (r *DocumentRepository) ListWithEmbeddings(ctx context.Context, source string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+`, e.embedding::text
		 FROM documents d
		 JOIN embeddings e ON e.document_id = d.id
		 WHERE $1 = '' OR d.source = $1
		 ORDER BY d.id`,
		source,
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

	rows, err := r.db.Query(ctx, `SELECT chunk_type, source, category, COUNT(*) FROM documents GROUP BY chunk_type, source, category`)
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
	rows, err := r.db.Query(ctx, `SELECT DISTINCT source FROM documents ORDER BY source`)
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
	tag, err := r.db.Exec(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanChunk(row pgx.Row, withEmbedding bool) (*domain.Chunk, error) {
	var (
		c         domain.Chunk
		chunkType string
		meta      string
		vecText   *string
	)
	dest := []any{&c.ID, &c.Content, &c.Source, &chunkType, &meta, &c.CreatedAt}
	if withEmbedding {
		dest = append(dest, &vecText)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	metadata, err := domain.DecodeMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("decode metadata of document %d: %w", c.ID, err)
	}
	c.ChunkType = domain.ChunkType(chunkType)
	c.Metadata = metadata
	c.CreatedAt = c.CreatedAt.UTC()
	if vecText != nil {
		var vec pgvector.Vector
		if err := vec.Scan(*vecText); err != nil {
			return nil, fmt.Errorf("decode embedding of document %d: %w", c.ID, err)
		}
		c.Embedding = vec.Slice()
	}
	return &c, nil
}

func scanChunkRows(rows pgx.Rows, withEmbedding bool) ([]*domain.Chunk, error) {
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
