// Package seed loads the built-in second-grade knowledge and the evaluator's
// strategy catalog into the document store.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/embedding"
	"github.com/cloo-solutions/coachkb/internal/evaluator"
	"github.com/cloo-solutions/coachkb/internal/extract"
	"github.com/sirupsen/logrus"
)

//go:embed knowledge.yaml
var knowledgeYAML []byte

const (
	KnowledgeSource = "seed://knowledge"
	CatalogSource   = "seed://catalog"
)

// Store is the subset of the document store seeding needs.
type Store interface {
	AddAll(ctx context.Context, drafts []domain.ChunkDraft, embeddings [][]float32) ([]int64, error)
	GetBySource(ctx context.Context, source string) ([]*domain.Chunk, error)
}

// KnowledgeDrafts flattens the built-in knowledge. Each top-level key is the
// chunk's category.
func KnowledgeDrafts(ctx context.Context) ([]domain.ChunkDraft, error) {
	roots, err := extract.ParseYAML(knowledgeYAML)
	if err != nil {
		return nil, fmt.Errorf("parse seed knowledge: %w", err)
	}

	var drafts []domain.ChunkDraft
	for _, root := range roots {
		for _, field := range root.Fields {
			ex := &extract.StructuredExtractor{Parse: func([]byte) ([]*extract.Node, error) {
				return []*extract.Node{field.Value}, nil
			}}
			out, err := ex.Extract(ctx, extract.Source{Name: KnowledgeSource})
			if err != nil {
				return nil, err
			}
			for _, d := range out {
				d.Metadata = d.Metadata.Set(domain.MetaCategory, domain.StringValue(field.Key))
				drafts = append(drafts, d)
			}
		}
	}
	return drafts, nil
}

var catalogPhrasing = map[domain.Category]string{
	domain.CategoryTime:          "%s classroom strategy: %s",
	domain.CategoryLearningStyle: "%s learner strategy: %s",
	domain.CategoryBehavior:      "%s behavior intervention: %s",
	domain.CategorySubject:       "%s teaching strategy: %s",
}

// CatalogDrafts renders every catalog strategy as a structured chunk so that
// semantic retrieval sees the same strategies the rules match on.
func CatalogDrafts(c *evaluator.Catalog) []domain.ChunkDraft {
	var drafts []domain.ChunkDraft
	for _, rule := range c.Rules {
		for _, key := range rule.Keys() {
			for _, strategy := range rule.Entries[key].Strategies {
				meta := domain.Metadata{}.
					Set(domain.MetaCategory, domain.StringValue(string(rule.Category))).
					Set("key", domain.StringValue(key))
				content := fmt.Sprintf(catalogPhrasing[rule.Category], key, strategy)
				drafts = append(drafts, domain.NewChunkDraft(content, CatalogSource, domain.ChunkTypeStructured, meta))
			}
		}
	}
	return drafts
}

// Seeder embeds and stores seed drafts once per source.
type Seeder struct {
	provider embedding.Provider
	store    Store
	catalog  *evaluator.Catalog
	logger   logrus.FieldLogger
}

func NewSeeder(provider embedding.Provider, store Store, catalog *evaluator.Catalog, logger logrus.FieldLogger) *Seeder {
	return &Seeder{provider: provider, store: store, catalog: catalog, logger: logger}
}

// Seed stores the knowledge and catalog chunks. A source that already has
// chunks is left alone. Returns the number of chunks added.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	knowledge, err := KnowledgeDrafts(ctx)
	if err != nil {
		return 0, err
	}

	sets := []struct {
		source string
		drafts []domain.ChunkDraft
	}{
		{KnowledgeSource, knowledge},
		{CatalogSource, CatalogDrafts(s.catalog)},
	}

	added := 0
	for _, set := range sets {
		existing, err := s.store.GetBySource(ctx, set.source)
		if err != nil {
			return added, err
		}
		if len(existing) > 0 {
			s.logger.WithField("source", set.source).Info("seed already present, skipping")
			continue
		}

		vectors := make([][]float32, 0, len(set.drafts))
		for _, d := range set.drafts {
			vec, err := s.provider.Embed(ctx, d.Content)
			if err != nil {
				return added, domain.NewEmbeddingError(err)
			}
			vectors = append(vectors, vec)
		}
		ids, err := s.store.AddAll(ctx, set.drafts, vectors)
		added += len(ids)
		if err != nil {
			return added, err
		}
		s.logger.WithFields(logrus.Fields{
			"source": set.source,
			"chunks": len(ids),
		}).Info("seed stored")
	}
	return added, nil
}
