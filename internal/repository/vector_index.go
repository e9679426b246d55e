package repository

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorIndex runs exact cosine search inside Postgres with pgvector.
// Similarity is 1 - cosine distance; a zero vector on either side scores 0.
type VectorIndex struct {
	db        dbtx
	dimension int
}

func NewVectorIndex(pool *pgxpool.Pool, dimension int) *VectorIndex {
	return &VectorIndex{db: pool, dimension: dimension}
}

func (i *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if i.dimension > 0 && len(query) != i.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	if k <= 0 {
		return []domain.Match{}, nil
	}

	rows, err := i.db.Query(ctx,
		`WITH scored AS (
			SELECT `+documentColumns+`, e.embedding::text AS embedding,
			       e.embedding <=> $1 AS distance
			FROM documents d
			JOIN embeddings e ON e.document_id = d.id
		)
		SELECT d.id, d.content, d.source, d.chunk_type, d.metadata, d.created_at, d.embedding,
		       CASE WHEN d.distance = 'NaN'::float8 THEN 0 ELSE 1 - d.distance END AS similarity
		FROM scored d
		ORDER BY similarity DESC, d.id
		LIMIT $2`,
		pgvector.NewVector(query), k,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		var (
			c          domain.Chunk
			chunkType  string
			meta       string
			vecText    string
			similarity float64
		)
		if err := rows.Scan(&c.ID, &c.Content, &c.Source, &chunkType, &meta, &c.CreatedAt, &vecText, &similarity); err != nil {
			return nil, err
		}
		metadata, err := domain.DecodeMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("decode metadata of document %d: %w", c.ID, err)
		}
		var vec pgvector.Vector
		if err := vec.Scan(vecText); err != nil {
			return nil, fmt.Errorf("decode embedding of document %d: %w", c.ID, err)
		}
		c.ChunkType = domain.ChunkType(chunkType)
		c.Metadata = metadata
		c.Embedding = vec.Slice()
		c.CreatedAt = c.CreatedAt.UTC()
		matches = append(matches, domain.Match{Chunk: &c, Similarity: clampSimilarity(similarity)})
	}
	return matches, rows.Err()
}

func clampSimilarity(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
