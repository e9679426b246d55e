package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cloo-solutions/coachkb/internal/extract"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	// MaxRetries is how often one version of a file is retried before it is
	// left alone until its content changes.
	MaxRetries = 3
)

// SourceIngestor ingests already loaded sources.
type SourceIngestor interface {
	IngestSources(ctx context.Context, sources []extract.Source) (*service.IngestReport, error)
}

// DropDirProcessor ingests new or changed files found under a directory.
type DropDirProcessor struct {
	dir      string
	walker   *service.Walker
	ingestor SourceIngestor
	ledger   *Ledger
	logger   logrus.FieldLogger
}

func NewDropDirProcessor(dir string, walker *service.Walker, ingestor SourceIngestor, ledger *Ledger, logger logrus.FieldLogger) *DropDirProcessor {
	return &DropDirProcessor{
		dir:      dir,
		walker:   walker,
		ingestor: ingestor,
		ledger:   ledger,
		logger:   logger.WithField("drop_dir", dir),
	}
}

// ProcessJobs implements the JobProcessor interface
func (p *DropDirProcessor) ProcessJobs(ctx context.Context) error {
	paths, err := p.walker.Collect(p.dir)
	if err != nil {
		return fmt.Errorf("failed to scan drop dir: %w", err)
	}

	var (
		sources []extract.Source
		hashes  = make(map[string]string)
	)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		hash := ContentHash(data)

		pending, err := p.pending(path, hash)
		if err != nil {
			return err
		}
		if !pending {
			continue
		}
		hashes[path] = hash
		sources = append(sources, extract.Source{Name: path, Data: data})
	}

	if len(sources) == 0 {
		return nil
	}

	p.logger.WithField("files", len(sources)).Info("processing dropped files")

	report, err := p.ingestor.IngestSources(ctx, sources)
	if err != nil {
		return fmt.Errorf("failed to ingest dropped files: %w", err)
	}

	for _, fr := range report.Files {
		hash := hashes[fr.Source]
		if fr.Err != nil {
			p.handleFailure(fr, hash)
			continue
		}
		if err := p.ledger.MarkIngested(fr.Source, hash, fr.Chunks); err != nil {
			return fmt.Errorf("failed to record %s: %w", fr.Source, err)
		}
		p.logger.WithFields(logrus.Fields{
			"source":  fr.Source,
			"chunks":  fr.Chunks,
			"skipped": fr.Skipped,
		}).Info("dropped file processed")
	}
	return nil
}

// pending reports whether this version of path still needs ingesting.
func (p *DropDirProcessor) pending(path, hash string) (bool, error) {
	done, err := p.ledger.Ingested(path, hash)
	if err != nil {
		return false, fmt.Errorf("failed to read ledger: %w", err)
	}
	if done {
		return false, nil
	}
	failure, failed, err := p.ledger.Failure(path, hash)
	if err != nil {
		return false, fmt.Errorf("failed to read ledger: %w", err)
	}
	return !failed || failure.Retries < MaxRetries, nil
}

// handleFailure handles a failed file with retry logic
func (p *DropDirProcessor) handleFailure(fr service.FileReport, hash string) {
	retries, err := p.ledger.MarkFailed(fr.Source, hash, fr.Err)
	if err != nil {
		p.logger.WithError(err).WithField("source", fr.Source).Error("failed to record failure")
		return
	}

	entry := p.logger.WithError(fr.Err).WithFields(logrus.Fields{
		"source":  fr.Source,
		"attempt": retries,
	})
	if retries >= MaxRetries {
		entry.Warn("dropped file exceeded max retries, waiting for a new version")
		return
	}
	entry.Warn("dropped file failed, will retry")
}
