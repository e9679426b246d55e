package service

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/embedding"
	"github.com/cloo-solutions/coachkb/internal/extract"
	"github.com/cloo-solutions/coachkb/internal/metrics"
	"github.com/cloo-solutions/coachkb/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultIngestConcurrency = 4

// FileReport is the outcome of ingesting one source.
type FileReport struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// IngestReport lists every file in input order.
type IngestReport struct {
	Files  []FileReport `json:"files"`
	Chunks int          `json:"chunks"`
}

// Failed counts files that ended with an error.
func (r *IngestReport) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

func WithConcurrency(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) IngestorOption {
	return func(i *Ingestor) { i.metrics = m }
}

// WithProgress registers a callback run once per finished file. Calls are
// serialized.
func WithProgress(fn func(FileReport)) IngestorOption {
	return func(i *Ingestor) { i.progress = fn }
}

// Ingestor extracts, embeds and stores knowledge files. Files are processed
// in parallel; one file failing never stops the others.
type Ingestor struct {
	registry    *extract.Registry
	provider    embedding.Provider
	store       *Store
	concurrency int
	metrics     *metrics.Metrics
	progress    func(FileReport)
	logger      logrus.FieldLogger

	progressMu sync.Mutex
}

func NewIngestor(registry *extract.Registry, provider embedding.Provider, store *Store, logger logrus.FieldLogger, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		registry:    registry,
		provider:    provider,
		store:       store,
		concurrency: DefaultIngestConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest reads and ingests files from disk.
func (i *Ingestor) Ingest(ctx context.Context, paths ...string) (*IngestReport, error) {
	return i.IngestCategory(ctx, "", paths...)
}

// IngestCategory ingests files from disk, tagging every chunk with category.
// An empty category leaves chunks untagged.
func (i *Ingestor) IngestCategory(ctx context.Context, category string, paths ...string) (*IngestReport, error) {
	category = strings.TrimSpace(category)
	return i.run(ctx, len(paths), func(idx int) (extract.Source, error) {
		name := filepath.Clean(paths[idx])
		data, err := os.ReadFile(name)
		return extract.Source{Name: name, Data: data, Category: category}, err
	})
}

// IngestSources ingests sources already held in memory.
func (i *Ingestor) IngestSources(ctx context.Context, sources []extract.Source) (*IngestReport, error) {
	return i.run(ctx, len(sources), func(idx int) (extract.Source, error) {
		return sources[idx], nil
	})
}

func (i *Ingestor) run(ctx context.Context, n int, load func(int) (extract.Source, error)) (*IngestReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "Ingestor.Ingest", telemetry.SpanAttributes{Operation: "ingest"})
	defer span.End()

	report := &IngestReport{Files: make([]FileReport, n)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx := 0; idx < n; idx++ {
		g.Go(func() error {
			src, err := load(idx)
			var fr FileReport
			if err != nil {
				fr = FileReport{Source: src.Name, Err: domain.NewExtractionError(src.Name, err)}
			} else {
				fr = i.ingestOne(gctx, src)
			}
			if fr.Err != nil {
				fr.Error = fr.Err.Error()
			}
			report.Files[idx] = fr
			i.notify(fr)
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range report.Files {
		report.Chunks += f.Chunks
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	i.logger.WithFields(logrus.Fields{
		"files":  n,
		"failed": report.Failed(),
		"chunks": report.Chunks,
	}).Info("ingest finished")

	return report, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, src extract.Source) FileReport {
	fr := FileReport{Source: src.Name}
	log := i.logger.WithField("source", src.Name)

	if !i.registry.Supports(src.Name) {
		log.Warn("unsupported file type, skipping")
		fr.Skipped = true
		i.metrics.RecordFile("skipped")
		return fr
	}

	drafts, err := i.registry.Extract(ctx, src)
	if err != nil {
		log.WithError(err).Warn("extraction failed")
		i.metrics.RecordExtractionFailure(strings.ToLower(filepath.Ext(src.Name)))
		i.metrics.RecordFile("failed")
		fr.Err = err
		return fr
	}
	if category := strings.TrimSpace(src.Category); category != "" {
		for j := range drafts {
			meta := slices.Clip(drafts[j].Metadata)
			drafts[j].Metadata = meta.Set(domain.MetaCategory, domain.StringValue(category))
		}
	}

	vectors := make([][]float32, len(drafts))
	for j, d := range drafts {
		vec, err := i.provider.Embed(ctx, d.Content)
		if err != nil {
			log.WithError(err).Warn("embedding failed")
			i.metrics.RecordFile("failed")
			fr.Err = embeddingError(err)
			return fr
		}
		vectors[j] = vec
	}

	ids, err := i.store.AddAll(ctx, drafts, vectors)
	fr.Chunks = len(ids)
	for _, d := range drafts[:len(ids)] {
		i.metrics.RecordChunks(string(d.ChunkType), 1)
	}
	if err != nil {
		log.WithError(err).Error("store failed")
		i.metrics.RecordFile("failed")
		fr.Err = err
		return fr
	}

	i.metrics.RecordFile("ok")
	log.WithField("chunks", fr.Chunks).Debug("file ingested")
	return fr
}

func (i *Ingestor) notify(fr FileReport) {
	if i.progress == nil {
		return
	}
	i.progressMu.Lock()
	defer i.progressMu.Unlock()
	i.progress(fr)
}

func embeddingError(err error) error {
	if domain.HasCode(err, domain.ErrCodeEmbedding) {
		return err
	}
	return domain.NewEmbeddingError(err)
}
