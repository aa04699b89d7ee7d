package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	Search     SearchConfig
	Embedding  EmbeddingConfig
	Backfill   BackfillConfig
	Logging    LoggingConfig

	// Warnings collects values that could not be parsed and fell back to
	// defaults. They are reported once a logger exists.
	Warnings []string
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, takes precedence over the fields below
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	GinMode         string
	AllowedOrigins  string
	ShutdownTimeout time.Duration
}

// SearchConfig holds search-related configuration
type SearchConfig struct {
	MatchThreshold      float64
	MatchCount          int
	MaxMatchCount       int
	ChronologicalIntent bool // re-rank first/last matches by occurred_at before truncating
	LogEnabled          bool
}

// Embedding providers
const (
	ProviderOpenAI = "openai"
	ProviderEdge   = "edge"
)

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider    string
	APIKey      string
	APIBase     string
	Model       string
	Dimensions  int
	FunctionURL string // edge function endpoint, used by the "edge" provider
	Timeout     time.Duration
}

// BackfillConfig controls the embedding backfill job
type BackfillConfig struct {
	BatchSize     int
	Concurrency   int
	RatePerSecond float64
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Env   string // prod, dev, local
	Level string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                l.str("DATABASE_URL", l.str("POSTGRESQL_URI", l.str("PG_DSN", ""))),
			Host:               l.str("PG_HOST", "localhost"),
			Port:               l.int("PG_PORT", 5432),
			User:               l.str("PG_USER", "postgres"),
			Password:           l.str("PG_PASSWORD", ""),
			Database:           l.str("PG_DATABASE", "postgres"),
			SSLMode:            l.str("PG_SSLMODE", "disable"),
			MaxConnections:     l.int("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: l.int("PG_MAX_IDLE_CONNECTIONS", 5),
		},
		Server: ServerConfig{
			Port:            l.int("SERVER_PORT", 8080),
			Host:            l.str("SERVER_HOST", "0.0.0.0"),
			GinMode:         l.str("GIN_MODE", "release"),
			AllowedOrigins:  l.str("CORS_ALLOWED_ORIGINS", "*"),
			ShutdownTimeout: l.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Search: SearchConfig{
			MatchThreshold:      l.float("SEARCH_MATCH_THRESHOLD", 0.65),
			MatchCount:          l.int("SEARCH_MATCH_COUNT", 20),
			MaxMatchCount:       l.int("SEARCH_MAX_MATCH_COUNT", 100),
			ChronologicalIntent: l.bool("SEARCH_CHRONOLOGICAL_INTENT", false),
			LogEnabled:          l.bool("SEARCH_LOG_ENABLED", true),
		},
		Embedding: EmbeddingConfig{
			Provider:    strings.ToLower(l.str("EMBEDDING_PROVIDER", ProviderOpenAI)),
			APIKey:      l.str("EMBEDDING_API_KEY", l.str("OPENAI_API_KEY", "")),
			APIBase:     l.str("EMBEDDING_API_BASE", "https://api.openai.com/v1"),
			Model:       l.str("EMBEDDING_MODEL", "gte-small"),
			Dimensions:  l.int("EMBEDDING_DIMENSIONS", 384),
			FunctionURL: l.str("EMBEDDING_FUNCTION_URL", ""),
			Timeout:     l.duration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Backfill: BackfillConfig{
			BatchSize:     l.int("BACKFILL_BATCH_SIZE", 100),
			Concurrency:   l.int("BACKFILL_CONCURRENCY", 4),
			RatePerSecond: l.float("BACKFILL_RATE_PER_SECOND", 5),
		},
		Logging: LoggingConfig{
			Env:   l.str("APP_ENV", "prod"),
			Level: l.str("LOG_LEVEL", ""),
		},
	}
	cfg.Warnings = l.warnings

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Search.MatchThreshold < 0 || c.Search.MatchThreshold > 1 {
		return fmt.Errorf("SEARCH_MATCH_THRESHOLD must be within [0, 1], got %g", c.Search.MatchThreshold)
	}
	if c.Search.MatchCount <= 0 {
		return fmt.Errorf("SEARCH_MATCH_COUNT must be positive, got %d", c.Search.MatchCount)
	}
	if c.Search.MaxMatchCount < c.Search.MatchCount {
		return fmt.Errorf("SEARCH_MAX_MATCH_COUNT (%d) must be >= SEARCH_MATCH_COUNT (%d)",
			c.Search.MaxMatchCount, c.Search.MatchCount)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI:
	case ProviderEdge:
		if c.Embedding.FunctionURL == "" {
			return fmt.Errorf("EMBEDDING_FUNCTION_URL is required for the %q provider", ProviderEdge)
		}
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderEdge, c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Backfill.BatchSize <= 0 || c.Backfill.Concurrency <= 0 {
		return fmt.Errorf("BACKFILL_BATCH_SIZE and BACKFILL_CONCURRENCY must be positive")
	}
	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Address returns the host:port the HTTP server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Helper functions

type loader struct {
	warnings []string
}

func (l *loader) str(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (l *loader) int(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		l.warnf("invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func (l *loader) float(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		l.warnf("invalid float value for %s, using default %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func (l *loader) bool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		l.warnf("invalid boolean value for %s, using default %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// duration accepts Go duration strings ("30s") or a bare number of seconds.
func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		l.warnf("invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func (l *loader) warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}
