package index

import (
	"context"
	"strings"
	"time"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/embedding"
	"github.com/cloo-solutions/coachkb/internal/metrics"
	"github.com/cloo-solutions/coachkb/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// Retriever embeds text queries and runs them against an Index.
type Retriever struct {
	provider embedding.Provider
	index    Index
	metrics  *metrics.Metrics
	logger   logrus.FieldLogger
}

func NewRetriever(provider embedding.Provider, index Index, m *metrics.Metrics, logger logrus.FieldLogger) *Retriever {
	return &Retriever{
		provider: provider,
		index:    index,
		metrics:  m,
		logger:   logger,
	}
}

// Provider is the embedder used for queries.
func (r *Retriever) Provider() embedding.Provider {
	return r.provider
}

// Search runs a vector query.
func (r *Retriever) Search(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Search", telemetry.SpanAttributes{Operation: "search"})
	defer span.End()

	defer r.metrics.ObserveSearch(time.Now())
	matches, err := r.index.Search(ctx, query, k)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return matches, nil
}

// SearchText embeds text and returns its k nearest chunks. Blank text
// returns no matches.
func (r *Retriever) SearchText(ctx context.Context, text string, k int) ([]domain.Match, error) {
	text = strings.TrimSpace(text)
	if text == "" || k <= 0 {
		return []domain.Match{}, nil
	}

	vec, err := r.provider.Embed(ctx, text)
	if err != nil {
		r.logger.WithError(err).WithField("query", text).Warn("query embedding failed")
		return nil, err
	}
	return r.Search(ctx, vec, k)
}
