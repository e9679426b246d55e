package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/coachkb/internal/api/handlers"
	"github.com/cloo-solutions/coachkb/internal/api/middleware"
	"github.com/cloo-solutions/coachkb/internal/jobs"
	"github.com/cloo-solutions/coachkb/internal/server"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/cloo-solutions/coachkb/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the coachkb API server, and the drop-dir worker when COACHKB_DROP_DIR is set",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides COACHKB_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("seed", false, "Load the built-in knowledge before serving if the store has none")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []AppOption
	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); noMigrate {
		opts = append(opts, WithoutMigrations())
	}
	app, err := NewApp(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	logger := app.Logger

	if cfg.HasSentry() {
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
			Logger:           logger,
		})
		if err != nil {
			logger.WithError(err).Warn("telemetry init failed, continuing without tracing")
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	if seedFlag, _ := cmd.Flags().GetBool("seed"); seedFlag {
		if _, err := seedStore(ctx, app); err != nil {
			return err
		}
	}

	var auth middleware.AuthValidator
	if cfg.APIKey != "" {
		auth = middleware.StaticKey(cfg.APIKey)
	} else {
		logger.Warn("COACHKB_API_KEY is not set, API is unauthenticated")
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   auth,
		Logger:          logger,
		Metrics:         app.Metrics,
		DocumentHandler: handlers.NewDocumentHandler(app.Store, app.Ingestor),
		SearchHandler:   handlers.NewSearchHandler(app.Retriever, cfg.SearchTopK),
		EvaluateHandler: handlers.NewEvaluateHandler(app.Evaluator),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("port", cfg.Port).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if cfg.DropDir != "" {
		if err := os.MkdirAll(cfg.DropDir, 0o755); err != nil {
			return fmt.Errorf("failed to create drop dir: %w", err)
		}
		ledger, err := jobs.OpenLedger(cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer ledger.Close()

		walker := service.NewWalker(nil, nil)
		processor := jobs.NewDropDirProcessor(cfg.DropDir, walker, app.Ingestor, ledger, logger)
		worker := jobs.NewWorker(processor, cfg.DropPollInterval, logger)

		go worker.Start(gctx)
		defer worker.Stop()
		worker.Trigger()

		g.Go(func() error {
			return jobs.Watch(gctx, cfg.DropDir, worker, logger)
		})
		logger.WithField("dir", cfg.DropDir).Info("drop-dir worker started")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
