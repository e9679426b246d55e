package service

import (
	"context"
	"sort"
	"sync"

	"github.com/cloo-solutions/coachkb/internal/domain"
)

type testTxRepos struct {
	documents  DocumentRepositoryInterface
	embeddings EmbeddingRepositoryInterface
}

func (t *testTxRepos) Documents() DocumentRepositoryInterface {
	return t.documents
}

func (t *testTxRepos) Embeddings() EmbeddingRepositoryInterface {
	return t.embeddings
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}

// memRepo is an in-memory store backing both repositories. Its tx runner
// snapshots state and restores it when fn fails.
type memRepo struct {
	mu      sync.Mutex
	nextID  int64
	docs    map[int64]*domain.Chunk
	vectors map[int64][]float32

	failEmbeddingCreate error
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:  1,
		docs:    make(map[int64]*domain.Chunk),
		vectors: make(map[int64][]float32),
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	m.mu.Lock()
	docs := make(map[int64]*domain.Chunk, len(m.docs))
	for k, v := range m.docs {
		docs[k] = v
	}
	vectors := make(map[int64][]float32, len(m.vectors))
	for k, v := range m.vectors {
		vectors[k] = v
	}
	m.mu.Unlock()

	if err := fn(&testTxRepos{documents: memDocs{m}, embeddings: memEmbeddings{m}}); err != nil {
		m.mu.Lock()
		m.docs, m.vectors = docs, vectors
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type memDocs struct{ m *memRepo }

func (r memDocs) Create(ctx context.Context, c *domain.Chunk) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c.ID = r.m.nextID
	r.m.nextID++
	cp := *c
	cp.Embedding = nil
	r.m.docs[c.ID] = &cp
	return nil
}

func (r memDocs) GetByID(ctx context.Context, id int64) (*domain.Chunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.docs[id]
	if !ok {
		return nil, domain.ErrChunkNotFound
	}
	cp := *c
	cp.Embedding = r.m.vectors[id]
	return &cp, nil
}

func (r memDocs) List(ctx context.Context, filter ListFilter) ([]*domain.Chunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []*domain.Chunk{}
	for _, id := range r.m.sortedIDs() {
		c := r.m.docs[id]
		if id <= filter.AfterID || (filter.Source != "" && c.Source != filter.Source) {
			continue
		}
		if filter.Category != "" && c.Category() != filter.Category {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r memDocs) ListWithEmbeddings(ctx context.Context, source string) ([]*domain.Chunk, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []*domain.Chunk{}
	for _, id := range r.m.sortedIDs() {
		c := r.m.docs[id]
		vec, ok := r.m.vectors[id]
		if !ok || (source != "" && c.Source != source) {
			continue
		}
		cp := *c
		cp.Embedding = vec
		out = append(out, &cp)
	}
	return out, nil
}

func (r memDocs) Stats(ctx context.Context) (*domain.Stats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stats := &domain.Stats{
		ByChunkType: map[domain.ChunkType]int64{},
		BySource:    map[string]int64{},
		ByCategory:  map[string]int64{},
	}
	for _, c := range r.m.docs {
		stats.Total++
		stats.ByChunkType[c.ChunkType]++
		stats.BySource[c.Source]++
		if category := c.Category(); category != "" {
			stats.ByCategory[category]++
		}
	}
	return stats, nil
}

func (r memDocs) Sources(ctx context.Context) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, c := range r.m.docs {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r memDocs) DeleteAll(ctx context.Context) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := int64(len(r.m.docs))
	r.m.docs = make(map[int64]*domain.Chunk)
	return n, nil
}

type memEmbeddings struct{ m *memRepo }

func (r memEmbeddings) Create(ctx context.Context, documentID int64, embedding []float32) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failEmbeddingCreate != nil {
		return r.m.failEmbeddingCreate
	}
	r.m.vectors[documentID] = append([]float32(nil), embedding...)
	return nil
}

func (r memEmbeddings) DeleteAll(ctx context.Context) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := int64(len(r.m.vectors))
	r.m.vectors = make(map[int64][]float32)
	return n, nil
}
