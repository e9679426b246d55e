// Package index ranks stored chunks by cosine similarity to a query vector.
package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/embedding"
)

// Index returns the k stored chunks most similar to query, best first.
// Ties are broken by ascending chunk id. k <= 0 yields an empty result.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]domain.Match, error)
}

// Corpus is a read-only snapshot source of chunks with embeddings.
type Corpus interface {
	GetAll(ctx context.Context) ([]*domain.Chunk, error)
}

// BruteForce scans the whole corpus on every query.
type BruteForce struct {
	corpus    Corpus
	dimension int
}

func NewBruteForce(corpus Corpus, dimension int) *BruteForce {
	return &BruteForce{corpus: corpus, dimension: dimension}
}

func (b *BruteForce) Search(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if len(query) != b.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	if k <= 0 {
		return []domain.Match{}, nil
	}

	chunks, err := b.corpus.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(query, chunks, k)
}

// Rank scores every chunk against query and keeps the top k. A stored
// embedding whose length differs from the query is an ErrDimensionMismatch.
func Rank(query []float32, chunks []*domain.Chunk, k int) ([]domain.Match, error) {
	if k <= 0 || len(chunks) == 0 {
		return []domain.Match{}, nil
	}

	matches := make([]domain.Match, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != len(query) {
			return nil, fmt.Errorf("chunk %d has %d dimensions, query has %d: %w",
				c.ID, len(c.Embedding), len(query), domain.ErrDimensionMismatch)
		}
		matches = append(matches, domain.Match{
			Chunk:      c,
			Similarity: embedding.Cosine(query, c.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Chunk.ID < matches[j].Chunk.ID
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}
