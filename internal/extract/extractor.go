// Package extract turns knowledge-source files into normalized chunk drafts.
package extract

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/sirupsen/logrus"
)

// Source is a file to extract, already read into memory.
type Source struct {
	Name string
	Data []byte
	// Category, when set, is stored as category metadata on every chunk.
	Category string
}

// Ext returns the lowercase extension of the source name.
func (s Source) Ext() string {
	return strings.ToLower(filepath.Ext(s.Name))
}

// Extractor converts one file format into chunk drafts.
type Extractor interface {
	ChunkType() domain.ChunkType
	Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error)
}

// Registry dispatches sources to extractors by extension.
type Registry struct {
	byExt  map[string]Extractor
	logger logrus.FieldLogger
}

// NewRegistry returns a registry with every built-in format registered.
func NewRegistry(logger logrus.FieldLogger) *Registry {
	r := &Registry{
		byExt:  make(map[string]Extractor),
		logger: logger,
	}
	r.Register(&TextExtractor{}, ".txt")
	r.Register(&JSONExtractor{}, ".json")
	r.Register(&YAMLExtractor{}, ".yaml", ".yml")
	r.Register(&CSVExtractor{}, ".csv")
	r.Register(&XLSXExtractor{}, ".xlsx")
	r.Register(NewMarkdownExtractor(), ".md", ".markdown")
	r.Register(&PDFExtractor{}, ".pdf")
	r.Register(&DocxExtractor{}, ".docx")
	return r
}

// Register binds an extractor to one or more extensions, replacing any previous binding.
func (r *Registry) Register(e Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Supports reports whether name has a registered extension.
func (r *Registry) Supports(name string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract runs the extractor registered for src. An unsupported extension
// yields an empty result and a warning, never an error. Extractor failures
// are returned as extraction errors for this source only.
func (r *Registry) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	e, ok := r.byExt[src.Ext()]
	if !ok {
		r.logger.WithFields(logrus.Fields{
			"source": src.Name,
			"ext":    src.Ext(),
		}).Warn("unsupported file type, skipping")
		return []domain.ChunkDraft{}, nil
	}

	drafts, err := e.Extract(ctx, src)
	if err != nil {
		return nil, domain.NewExtractionError(src.Name, err)
	}

	out := drafts[:0]
	for _, d := range drafts {
		d.Content = strings.TrimSpace(d.Content)
		if d.Content == "" {
			continue
		}
		d.Source = src.Name
		if d.Metadata == nil {
			d.Metadata = domain.Metadata{}
		}
		out = append(out, d)
	}

	r.logger.WithFields(logrus.Fields{
		"source": src.Name,
		"type":   e.ChunkType(),
		"chunks": len(out),
	}).Debug("extracted")

	return out, nil
}
