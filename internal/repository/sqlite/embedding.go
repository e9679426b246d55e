package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

type EmbeddingRepository struct {
	db dbtx
}

func NewEmbeddingRepository(db *sql.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

func NewEmbeddingRepositoryWithTx(tx *sql.Tx) *EmbeddingRepository {
	return &EmbeddingRepository{db: tx}
}

func (r *EmbeddingRepository) Create(ctx context.Context, documentID int64, embedding []float32) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO embeddings (document_id, embedding) VALUES (?, ?)`,
		documentID, encodeVector(embedding),
	)
	return err
}

func (r *EmbeddingRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM embeddings`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
