package config

import (
	"fmt"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Storage, index and embedding backends understood by the factories.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"

	IndexHNSW     = "hnsw"
	IndexWeaviate = "weaviate"

	EmbedNone   = "none"
	EmbedOpenAI = "openai"
	EmbedOllama = "ollama"
)

// SQLiteFilename is the database file created inside PersistDirectory.
const SQLiteFilename = "chroma.sqlite3"

// BoltFilename is the bbolt file created inside PersistDirectory.
const BoltFilename = "chroma.bolt"

// Config holds the configuration for the vector database server.
// Environment variables are parsed with the CHROMA_ prefix.
// Bind host and port are not part of it; the launcher passes them explicitly.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// Persistence
	IsPersistent     bool   `envconfig:"IS_PERSISTENT" default:"true"`
	PersistDirectory string `envconfig:"PERSIST_DIRECTORY" default:"./chroma-data"`
	DBDriver         string `envconfig:"DB_DRIVER" default:"auto"`
	PostgresDSN      string `envconfig:"POSTGRES_DSN" default:""`

	// Vector index
	IndexBackend string `envconfig:"INDEX_BACKEND" default:"hnsw"`
	WeaviateURL  string `envconfig:"WEAVIATE_URL" default:"localhost:8080"`

	// Server-side embeddings for documents / query texts sent without vectors
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"none"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:""`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com"`
	OllamaURL     string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`

	// API behaviour
	AllowReset   bool `envconfig:"ALLOW_RESET" default:"false"`
	MaxBatchSize int  `envconfig:"MAX_BATCH_SIZE" default:"5461"`

	// Health & bootstrap
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	BootstrapTimeoutSeconds   int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"5"`

	// HTTP timeouts
	ReadTimeoutSeconds  int `envconfig:"READ_TIMEOUT_SECONDS" default:"15"`
	WriteTimeoutSeconds int `envconfig:"WRITE_TIMEOUT_SECONDS" default:"60"`
}

// ResolveDefaults validates the backend selections and derives DBDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = DriverSQLite
	}
	switch c.DBDriver {
	case DriverSQLite, DriverBolt:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("CHROMA_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if !c.IsPersistent && c.DBDriver != DriverSQLite {
		return fmt.Errorf("IS_PERSISTENT=false is only supported with DB_DRIVER=sqlite")
	}

	if c.IndexBackend == "" {
		c.IndexBackend = IndexHNSW
	}
	switch c.IndexBackend {
	case IndexHNSW:
	case IndexWeaviate:
		if c.WeaviateURL == "" {
			return fmt.Errorf("CHROMA_WEAVIATE_URL is required when INDEX_BACKEND=weaviate")
		}
	default:
		return fmt.Errorf("unsupported INDEX_BACKEND: %s", c.IndexBackend)
	}

	if c.EmbedProvider == "" {
		c.EmbedProvider = EmbedNone
	}
	switch c.EmbedProvider {
	case EmbedNone:
	case EmbedOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("CHROMA_OPENAI_API_KEY is required when EMBED_PROVIDER=openai")
		}
		if c.EmbedModel == "" {
			c.EmbedModel = "text-embedding-3-small"
		}
	case EmbedOllama:
		if c.EmbedModel == "" {
			c.EmbedModel = "mxbai-embed-large"
		}
	default:
		return fmt.Errorf("unsupported EMBED_PROVIDER: %s", c.EmbedProvider)
	}

	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive, got %d", c.MaxBatchSize)
	}
	return nil
}

// New creates a new Config by parsing environment variables
// prefixed with CHROMA_, e.g. CHROMA_PERSIST_DIRECTORY, CHROMA_DB_DRIVER.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CHROMA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting creates an in-memory, offline config.
func NewForTesting() *Config {
	cfg := &Config{
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		IsPersistent:              false,
		DBDriver:                  DriverSQLite,
		IndexBackend:              IndexHNSW,
		EmbedProvider:             EmbedNone,
		OpenAIBaseURL:             "https://api.openai.com",
		OllamaURL:                 "http://localhost:11434",
		AllowReset:                true,
		MaxBatchSize:              5461,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		BootstrapTimeoutSeconds:   1,
		ReadTimeoutSeconds:        15,
		WriteTimeoutSeconds:       60,
	}
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SQLitePath returns the sqlite database location, or an empty string for an in-memory database.
func (c *Config) SQLitePath() string {
	if !c.IsPersistent {
		return ""
	}
	return filepath.Join(c.PersistDirectory, SQLiteFilename)
}

// BoltPath returns the bbolt database location.
func (c *Config) BoltPath() string {
	return filepath.Join(c.PersistDirectory, BoltFilename)
}
