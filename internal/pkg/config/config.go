package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":4000"`
	AdminAddr string `env:"ADMIN_ADDR" envDefault:":9091"`

	StoreDriver    string        `env:"STORE_DRIVER" envDefault:"postgres"`
	PostgresURL    string        `env:"POSTGRES_URL"`
	DBQueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`

	RedisAddr      string        `env:"REDIS_ADDR"` // empty disables caching
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	CacheOpTimeout time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"250ms"`

	APIKeyExpiry time.Duration `env:"API_KEY_EXPIRY" envDefault:"8760h"` // 365 days
	BcryptCost   int           `env:"BCRYPT_COST" envDefault:"10"`
	AdminToken   string        `env:"ADMIN_TOKEN"`

	MaxEventSize       int64  `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"` // 1MB
	PIIRedactionFields string `env:"PII_REDACTION_FIELDS" envDefault:"email,password,credit_card,ssn"`

	AuthRateLimit      int           `env:"AUTH_RATE_LIMIT" envDefault:"10"`
	AnalyticsRateLimit int           `env:"ANALYTICS_RATE_LIMIT" envDefault:"1000"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	CORSOrigins        []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	OTelEndpoint    string  `env:"OTEL_EXPORTER_ENDPOINT"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.05"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.PostgresURL == "" {
			return errors.New("POSTGRES_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return errors.New("STORE_DRIVER must be one of: postgres, memory")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("BCRYPT_COST must be between 4 and 31")
	}
	if c.APIKeyExpiry <= 0 {
		return errors.New("API_KEY_EXPIRY must be positive")
	}
	if c.AuthRateLimit <= 0 || c.AnalyticsRateLimit <= 0 {
		return errors.New("AUTH_RATE_LIMIT and ANALYTICS_RATE_LIMIT must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// RedactionFields returns the configured PII field names.
func (c *Config) RedactionFields() []string {
	var fields []string
	for _, f := range strings.Split(c.PIIRedactionFields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
