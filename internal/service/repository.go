package service

import (
	"context"

	"github.com/cloo-solutions/coachkb/internal/domain"
)

// ListFilter narrows a document listing. AfterID is an exclusive id cursor;
// Limit <= 0 means no limit.
type ListFilter struct {
	Source   string
	Category string
	AfterID  int64
	Limit    int
}

// DocumentRepositoryInterface persists chunk rows.
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Chunk) error
	GetByID(ctx context.Context, id int64) (*domain.Chunk, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.Chunk, error)
	// ListWithEmbeddings returns chunks joined with their vectors, ordered by
	// id. An empty source selects every chunk.
	ListWithEmbeddings(ctx context.Context, source string) ([]*domain.Chunk, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	Sources(ctx context.Context) ([]string, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// EmbeddingRepositoryInterface persists one vector per document.
type EmbeddingRepositoryInterface interface {
	Create(ctx context.Context, documentID int64, embedding []float32) error
	DeleteAll(ctx context.Context) (int64, error)
}
