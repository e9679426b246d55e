package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/embedding"
	"github.com/cloo-solutions/coachkb/internal/pagination"
	"github.com/cloo-solutions/coachkb/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store is the document store: chunks and their embeddings, written together.
// Writes are serialized; reads go straight to the repository.
type Store struct {
	docs      DocumentRepositoryInterface
	txRunner  TxRunner
	dimension int
	logger    logrus.FieldLogger

	mu sync.Mutex
}

// NewStore creates a store that accepts vectors of exactly dimension values.
func NewStore(docs DocumentRepositoryInterface, txRunner TxRunner, dimension int, logger logrus.FieldLogger) *Store {
	return &Store{
		docs:      docs,
		txRunner:  txRunner,
		dimension: dimension,
		logger:    logger,
	}
}

// Dimension is the vector length every stored embedding has.
func (s *Store) Dimension() int {
	return s.dimension
}

// Add validates the draft and vector, then inserts the document and its
// embedding in one transaction.
func (s *Store) Add(ctx context.Context, draft domain.ChunkDraft, vec []float32) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "Store.Add", telemetry.SpanAttributes{
		Source:    draft.Source,
		ChunkType: string(draft.ChunkType),
		Operation: "add",
	})
	defer span.End()

	draft.Content = strings.TrimSpace(draft.Content)
	if draft.Metadata == nil {
		draft.Metadata = domain.Metadata{}
	}
	if err := draft.Validate(); err != nil {
		return 0, err
	}
	if len(vec) != s.dimension {
		return 0, domain.ErrDimensionMismatch
	}
	if !embedding.Finite(vec) {
		return 0, domain.ErrNonFiniteVector
	}

	chunk := &domain.Chunk{
		Content:   draft.Content,
		Source:    draft.Source,
		ChunkType: draft.ChunkType,
		Metadata:  draft.Metadata,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Create(ctx, chunk); err != nil {
			return err
		}
		return repos.Embeddings().Create(ctx, chunk.ID, vec)
	})
	if err != nil {
		span.SetError(err)
		return 0, storeError("add chunk", err)
	}

	return chunk.ID, nil
}

// AddAll adds drafts with their vectors in order and returns the new ids.
// It stops at the first failure; chunks added before it stay.
func (s *Store) AddAll(ctx context.Context, drafts []domain.ChunkDraft, embeddings [][]float32) ([]int64, error) {
	if len(drafts) != len(embeddings) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "drafts and embeddings differ in length")
	}
	ids := make([]int64, 0, len(drafts))
	for i := range drafts {
		id, err := s.Add(ctx, drafts[i], embeddings[i])
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetAll returns every chunk with its embedding, ordered by id.
func (s *Store) GetAll(ctx context.Context) ([]*domain.Chunk, error) {
	chunks, err := s.docs.ListWithEmbeddings(ctx, "")
	if err != nil {
		return nil, storeError("get all chunks", err)
	}
	return chunks, nil
}

// GetBySource returns the chunks of one source with embeddings, ordered by id.
func (s *Store) GetBySource(ctx context.Context, source string) ([]*domain.Chunk, error) {
	if source == "" {
		return []*domain.Chunk{}, nil
	}
	chunks, err := s.docs.ListWithEmbeddings(ctx, source)
	if err != nil {
		return nil, storeError("get chunks by source", err)
	}
	return chunks, nil
}

// Get returns one chunk by id.
func (s *Store) Get(ctx context.Context, id int64) (*domain.Chunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "Store.Get", telemetry.SpanAttributes{
		ChunkID:   id,
		Operation: "get",
	})
	defer span.End()

	chunk, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get chunk", err)
	}
	return chunk, nil
}

type ListInput struct {
	Source   string
	Category string
	Cursor   string
	Limit    int
}

// List pages through chunks without embeddings, ordered by id.
func (s *Store) List(ctx context.Context, input ListInput) (pagination.PageResult[*domain.Chunk], error) {
	afterID, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return pagination.PageResult[*domain.Chunk]{}, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	chunks, err := s.docs.List(ctx, ListFilter{
		Source:   input.Source,
		Category: input.Category,
		AfterID:  afterID,
		Limit:    limit + 1,
	})
	if err != nil {
		return pagination.PageResult[*domain.Chunk]{}, storeError("list chunks", err)
	}

	return pagination.Page(chunks, limit, func(c *domain.Chunk) int64 { return c.ID }), nil
}

// DefaultSampleSize is the number of chunks Sample returns when n <= 0.
const DefaultSampleSize = 3

// Sample returns the first n chunks of a category in insertion order.
func (s *Store) Sample(ctx context.Context, category string, n int) ([]*domain.Chunk, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "category is required")
	}
	if n <= 0 {
		n = DefaultSampleSize
	}
	if n > MaxListLimit {
		n = MaxListLimit
	}
	chunks, err := s.docs.List(ctx, ListFilter{Category: category, Limit: n})
	if err != nil {
		return nil, storeError("sample category", err)
	}
	return chunks, nil
}

// Clear removes every chunk and embedding. Ids are never reused afterwards.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "Store.Clear", telemetry.SpanAttributes{Operation: "clear"})
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.Embeddings().DeleteAll(ctx); err != nil {
			return err
		}
		n, err := repos.Documents().DeleteAll(ctx)
		removed = n
		return err
	})
	if err != nil {
		span.SetError(err)
		return 0, storeError("clear store", err)
	}

	s.logger.WithField("removed", removed).Info("store cleared")
	return removed, nil
}

// Stats counts chunks in total, per chunk type, per source and per category.
func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	stats, err := s.docs.Stats(ctx)
	if err != nil {
		return nil, storeError("store stats", err)
	}
	return stats, nil
}

// Sources lists distinct chunk sources in lexical order.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	sources, err := s.docs.Sources(ctx)
	if err != nil {
		return nil, storeError("list sources", err)
	}
	return sources, nil
}

// storeError passes domain errors through and wraps everything else as a
// store I/O failure.
func storeError(op string, err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return domain.NewStoreIOError(op, err)
}
