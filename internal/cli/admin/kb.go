package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/coachkb/internal/cli"
	"github.com/cloo-solutions/coachkb/internal/cli/client"
	"github.com/cloo-solutions/coachkb/internal/config"
	"github.com/cloo-solutions/coachkb/internal/database"
	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/extract"
	"github.com/cloo-solutions/coachkb/internal/logging"
	"github.com/cloo-solutions/coachkb/internal/seed"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

func wantJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// MigrateCmd applies pending postgres migrations.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply every pending migration from COACHKB_MIGRATIONS_DIR to the postgres store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.StoreDriver != config.StoreDriverPostgres {
				return fmt.Errorf("migrations only apply to the %s store driver", config.StoreDriverPostgres)
			}
			logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			return database.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, logger)
		},
	}
}

// IngestCmd ingests local files and directories straight into the store.
func IngestCmd() *cobra.Command {
	var (
		includes []string
		excludes []string
		category string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest files into the knowledge base",
		Long: `Ingest files and directories into the knowledge base.

Directories are walked recursively. Supported formats: .txt, .md, .json, .yaml,
.yml, .csv, .pdf, .docx, .xlsx. Unsupported files are skipped with a warning.
With --category every chunk is tagged with that knowledge category.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := service.NewWalker(includes, excludes).Collect(args...)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no files matched")
			}

			var bar *progressbar.ProgressBar
			var opts []AppOption
			if !quiet && !wantJSON(cmd) {
				bar = cli.NewProgressBar(cmd.ErrOrStderr(), int64(len(files)), "Ingesting", false)
				opts = append(opts, WithIngestProgress(func(service.FileReport) { bar.Add(1) }))
			}

			app, err := NewApp(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Ingestor.IngestCategory(cmd.Context(), category, files...)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report, wantJSON(cmd))
		},
	}

	cmd.Flags().StringSliceVar(&includes, "include", nil, "Glob patterns to include (default **/*)")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "Glob patterns to exclude")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Knowledge category stored on every chunk")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	addOutputFlag(cmd)
	return cmd
}

// IngestS3Cmd ingests every object under a prefix of the configured bucket.
func IngestS3Cmd() *cobra.Command {
	var prefix, category string

	cmd := &cobra.Command{
		Use:   "ingest-s3",
		Short: "Ingest objects from the configured S3 bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			s3Client, err := app.S3(ctx)
			if err != nil {
				return err
			}
			sources, err := s3Client.Sources(ctx, prefix)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				return fmt.Errorf("no objects under prefix %q", prefix)
			}
			for i := range sources {
				sources[i].Category = category
			}

			report, err := app.Ingestor.IngestSources(ctx, sources)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report, wantJSON(cmd))
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only ingest keys starting with this prefix")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Knowledge category stored on every chunk")
	addOutputFlag(cmd)
	return cmd
}

// SampleCmd prints the first chunks stored under a category.
func SampleCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "sample <category>",
		Short: "Show the first chunks of a knowledge category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()
			return runSample(cmd.Context(), cmd.OutOrStdout(), app.Store, args[0], n, wantJSON(cmd))
		},
	}

	cmd.Flags().IntVarP(&n, "number", "n", service.DefaultSampleSize, "Number of chunks")
	addOutputFlag(cmd)
	return cmd
}

func runSample(ctx context.Context, w io.Writer, store *service.Store, category string, n int, asJSON bool) error {
	chunks, err := store.Sample(ctx, category, n)
	if err != nil {
		return err
	}
	if asJSON {
		out := make([]client.Chunk, 0, len(chunks))
		for _, c := range chunks {
			out = append(out, client.Chunk{
				ID:        c.ID,
				Content:   c.Content,
				Source:    c.Source,
				ChunkType: string(c.ChunkType),
				Metadata:  c.Metadata,
				CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return writeJSON(w, out)
	}
	if len(chunks) == 0 {
		fmt.Fprintf(w, "No chunks in category %q.\n", category)
		return nil
	}
	for _, c := range chunks {
		fmt.Fprintf(w, "%6d  %s\n", c.ID, c.Content)
	}
	return nil
}

func printReport(w io.Writer, report *service.IngestReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, report)
	}
	for _, f := range report.Files {
		switch {
		case f.Error != "":
			fmt.Fprintf(w, "FAIL  %s: %s\n", f.Source, f.Error)
		case f.Skipped:
			fmt.Fprintf(w, "SKIP  %s\n", f.Source)
		default:
			fmt.Fprintf(w, "OK    %s (%d chunks)\n", f.Source, f.Chunks)
		}
	}
	fmt.Fprintf(w, "\n%d files, %d chunks, %d failed\n", len(report.Files), report.Chunks, report.Failed())
	return nil
}

// SeedCmd loads the built-in knowledge and strategy catalog.
func SeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in coaching knowledge",
		Long:  "Store the built-in knowledge and strategy catalog. Sources that already have chunks are left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			added, err := seedStore(cmd.Context(), app)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"added": added})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d chunks\n", added)
			return nil
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func seedStore(ctx context.Context, app *App) (int, error) {
	seeder := seed.NewSeeder(app.Provider, app.Store, app.Evaluator.Catalog(), app.Logger)
	added, err := seeder.Seed(ctx)
	if err != nil {
		return added, fmt.Errorf("failed to seed: %w", err)
	}
	return added, nil
}

// ClearCmd removes every chunk from the store.
func ClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every document from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the store without --yes")
			}
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			deleted, err := app.Store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"deleted": deleted})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chunks\n", deleted)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	addOutputFlag(cmd)
	return cmd
}

// StatsCmd prints chunk counts straight from the store.
func StatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			byType := make(map[string]int64, len(stats.ByChunkType))
			for t, n := range stats.ByChunkType {
				byType[string(t)] = n
			}
			if wantJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), client.Stats{
					Total:       stats.Total,
					ByChunkType: byType,
					BySource:    stats.BySource,
					ByCategory:  stats.ByCategory,
				})
			}
			client.PrintStats(cmd.OutOrStdout(), client.Stats{
				Total:       stats.Total,
				ByChunkType: byType,
				BySource:    stats.BySource,
				ByCategory:  stats.ByCategory,
			})
			return nil
		},
	}
	addOutputFlag(cmd)
	return cmd
}

// ValidateCmd checks knowledge files against the strategy layout without
// touching the store.
func ValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate knowledge files",
		Long: `Check knowledge files before ingestion.

  .json  top-level object whose categories carry a "strategies" list
  .csv   header with "category" and "strategy" columns
  .txt   every section contains "Strategy:"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args)
		},
	}
	return cmd
}

func runValidate(w io.Writer, files []string) error {
	var failed []string
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		src := extract.Source{Name: filepath.Base(path), Data: data}
		if err := extract.ValidateKnowledge(src); err != nil {
			msg := err.Error()
			if domain.HasCode(err, domain.ErrCodeUnsupportedFormat) {
				msg = "unsupported format"
			}
			fmt.Fprintf(w, "INVALID  %s: %s\n", path, msg)
			failed = append(failed, path)
			continue
		}
		fmt.Fprintf(w, "VALID    %s\n", path)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d invalid file(s): %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}
