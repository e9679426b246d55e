package admin

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cloo-solutions/coachkb/internal/config"
	"github.com/cloo-solutions/coachkb/internal/database"
	"github.com/cloo-solutions/coachkb/internal/embedding"
	"github.com/cloo-solutions/coachkb/internal/evaluator"
	"github.com/cloo-solutions/coachkb/internal/extract"
	"github.com/cloo-solutions/coachkb/internal/index"
	"github.com/cloo-solutions/coachkb/internal/logging"
	"github.com/cloo-solutions/coachkb/internal/metrics"
	"github.com/cloo-solutions/coachkb/internal/openai"
	"github.com/cloo-solutions/coachkb/internal/repository"
	"github.com/cloo-solutions/coachkb/internal/repository/sqlite"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/cloo-solutions/coachkb/internal/storage"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// App holds every long-lived component a coachkbd command may need.
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
	Provider  embedding.Provider
	Store     *service.Store
	Index     index.Index
	Retriever *index.Retriever
	Evaluator *evaluator.Evaluator
	Registry  *extract.Registry
	Ingestor  *service.Ingestor

	closers []func()
}

type appOptions struct {
	migrate    bool
	onProgress func(service.FileReport)
}

type AppOption func(*appOptions)

// WithoutMigrations skips applying migrations even if auto-migrate is on.
func WithoutMigrations() AppOption {
	return func(o *appOptions) { o.migrate = false }
}

// WithIngestProgress is called once per file the ingestor finishes.
func WithIngestProgress(fn func(service.FileReport)) AppOption {
	return func(o *appOptions) { o.onProgress = fn }
}

// NewApp loads configuration and builds the store, provider, index,
// evaluator and ingestor for the configured drivers.
func NewApp(ctx context.Context, opts ...AppOption) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(ctx, cfg, opts...)
}

func newApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	o := appOptions{migrate: cfg.AutoMigrate}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.New(),
		Provider: newProvider(cfg),
	}

	if err := app.openStore(ctx, o.migrate); err != nil {
		app.Close()
		return nil, err
	}

	app.Retriever = index.NewRetriever(app.Provider, app.Index, app.Metrics, logger)
	app.Evaluator = evaluator.New(app.Provider, app.Retriever, evaluator.NewRandomSource(cfg.EvaluatorSeed),
		evaluator.WithTopK(cfg.SearchTopK),
		evaluator.WithMetrics(app.Metrics),
		evaluator.WithLogger(logger),
	)
	app.Registry = extract.NewRegistry(logger)

	ingestOpts := []service.IngestorOption{
		service.WithConcurrency(cfg.IngestConcurrency),
		service.WithMetrics(app.Metrics),
	}
	if o.onProgress != nil {
		ingestOpts = append(ingestOpts, service.WithProgress(o.onProgress))
	}
	app.Ingestor = service.NewIngestor(app.Registry, app.Provider, app.Store, logger, ingestOpts...)

	return app, nil
}

func newProvider(cfg *config.Config) embedding.Provider {
	var provider embedding.Provider
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		provider = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			RequestsPerSecond:   cfg.EmbeddingRateLimit,
			Timeout:             cfg.EmbeddingTimeout,
		})
	default:
		provider = embedding.NewHasher(cfg.EmbeddingDimensions)
	}
	if cfg.EmbeddingCacheTTL > 0 {
		provider = embedding.NewCached(provider, cfg.EmbeddingCacheTTL)
	}
	return provider
}

func (a *App) openStore(ctx context.Context, migrate bool) error {
	cfg := a.Config
	dim := a.Provider.Dimension()

	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { closeDB(db, a.Logger) })
		a.Store = service.NewStore(sqlite.NewDocumentRepository(db), sqlite.NewTxRunner(db), dim, a.Logger)
		a.Index = index.NewBruteForce(a.Store, dim)
		a.Logger.WithField("path", cfg.SQLitePath).Info("opened sqlite store")

	default:
		if migrate {
			if err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, a.Logger); err != nil {
				return err
			}
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.Store = service.NewStore(repository.NewDocumentRepository(pool), repository.NewTxRunner(pool), dim, a.Logger)
		a.Index = repository.NewVectorIndex(pool, dim)
		a.Logger.Info("connected to database")
	}
	return nil
}

// S3 builds a client for the configured bucket.
func (a *App) S3(ctx context.Context) (*storage.S3Client, error) {
	cfg := a.Config
	if !cfg.HasS3() {
		return nil, fmt.Errorf("S3 is not configured: COACHKB_S3_ENDPOINT, COACHKB_S3_ACCESS_KEY_ID and COACHKB_S3_SECRET_ACCESS_KEY are required")
	}
	return storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    cfg.S3PathStyle,
	})
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func closeDB(db *sql.DB, logger logrus.FieldLogger) {
	if err := db.Close(); err != nil {
		logger.WithError(err).Warn("failed to close sqlite store")
	}
}
