package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	EmbeddingProviderHash   = "hash"
	EmbeddingProviderOpenAI = "openai"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"coachkb.db"`

	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`
	AutoMigrate   bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	EmbeddingProvider   string        `envconfig:"EMBEDDING_PROVIDER" default:"hash"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingCacheTTL   time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"10m"`
	EmbeddingRateLimit  float64       `envconfig:"EMBEDDING_RATE_LIMIT" default:"5"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"coachkb-knowledge"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3PathStyle bool   `envconfig:"S3_PATH_STYLE" default:"true"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Optional bearer token protecting the HTTP API
	APIKey string `envconfig:"API_KEY"`

	DropDir           string        `envconfig:"DROP_DIR"`
	DropPollInterval  time.Duration `envconfig:"DROP_POLL_INTERVAL" default:"10s"`
	LedgerPath        string        `envconfig:"LEDGER_PATH" default:"coachkb-ledger.db"`
	IngestConcurrency int           `envconfig:"INGEST_CONCURRENCY" default:"4"`

	EvaluatorSeed uint64 `envconfig:"EVALUATOR_SEED" default:"42"`
	SearchTopK    int    `envconfig:"SEARCH_TOP_K" default:"3"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("COACHKB", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate checks combinations envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("COACHKB_DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("COACHKB_SQLITE_PATH is required for store driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch c.EmbeddingProvider {
	case EmbeddingProviderHash:
	case EmbeddingProviderOpenAI:
		if !c.HasOpenAI() {
			return fmt.Errorf("COACHKB_OPENAI_API_KEY is required for embedding provider %q", c.EmbeddingProvider)
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
	}

	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("COACHKB_EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.IngestConcurrency <= 0 {
		c.IngestConcurrency = 1
	}
	if c.SearchTopK <= 0 {
		c.SearchTopK = 3
	}

	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
