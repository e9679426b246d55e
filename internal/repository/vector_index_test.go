//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndex_MatchesBruteForce(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	store := newPostgresStore(pool, 3)

	vectors := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
		{1, 0, 0},
		{-1, 0, 0},
		{0, 0, 0},
	}
	for i, v := range vectors {
		_, err := store.Add(ctx, domain.NewChunkDraft("chunk", "s", domain.ChunkTypeText, domain.Metadata{}.Set("i", domain.IntValue(int64(i)))), v)
		require.NoError(t, err)
	}

	pg := NewVectorIndex(pool, 3)
	bf := index.NewBruteForce(store, 3)
	query := []float32{1, 0.05, 0}

	for _, k := range []int{1, 3, 6, 10} {
		want, err := bf.Search(ctx, query, k)
		require.NoError(t, err)
		got, err := pg.Search(ctx, query, k)
		require.NoError(t, err)

		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Chunk.ID, got[i].Chunk.ID)
			assert.InDelta(t, want[i].Similarity, got[i].Similarity, 1e-6)
		}
	}
}

func TestVectorIndex_Bounds(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	pg := NewVectorIndex(pool, 2)

	empty, err := pg.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := pg.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = pg.Search(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}
