package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type EmbeddingRepository struct {
	db dbtx
}

func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{db: pool}
}

func NewEmbeddingRepositoryWithTx(tx pgx.Tx) *EmbeddingRepository {
	return &EmbeddingRepository{db: tx}
}

func (r *EmbeddingRepository) Create(ctx context.Context, documentID int64, embedding []float32) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO embeddings (document_id, embedding) VALUES ($1, $2)`,
		documentID, pgvector.NewVector(embedding),
	)
	return err
}

func (r *EmbeddingRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM embeddings`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
