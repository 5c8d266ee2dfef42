package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	pkgconfig "github.com/utafrali/storefront-ratings/pkg/config"
	"github.com/utafrali/storefront-ratings/pkg/database"
)

// Storage and lock backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Config holds all configuration for the rating service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort int `env:"RATING_HTTP_PORT" envDefault:"8012"`

	// "postgres" or "memory"
	StorageBackend string `env:"RATING_STORAGE_BACKEND" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"RATING_DB_NAME" envDefault:"rating_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`
	// Without Redis the service runs with the in-process cache tier and lock only.
	RedisEnabled bool `env:"REDIS_ENABLED" envDefault:"true"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"RATING_KAFKA_GROUP" envDefault:"rating-service"`

	// Aggregation
	LockBackend       string        `env:"RATING_LOCK_BACKEND" envDefault:"memory"`
	LockTTL           time.Duration `env:"RATING_LOCK_TTL" envDefault:"10s"`
	CacheTTL          time.Duration `env:"RATING_CACHE_TTL" envDefault:"5m"`
	CacheSize         int           `env:"RATING_CACHE_SIZE" envDefault:"10000"`
	ReconcileInterval time.Duration `env:"RATING_RECONCILE_INTERVAL" envDefault:"1h"`
	ReconcileBatch    int           `env:"RATING_RECONCILE_BATCH" envDefault:"500"`
	// On-demand recompute throttle per entity; 0 disables it.
	RecomputeRPS   float64 `env:"RATING_RECOMPUTE_RPS" envDefault:"1"`
	RecomputeBurst int     `env:"RATING_RECOMPUTE_BURST" envDefault:"3"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("load rating config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.StorageBackend {
	case BackendPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("RATING_STORAGE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StorageBackend)
	}
	switch c.LockBackend {
	case BackendMemory:
	case BackendRedis:
		if !c.RedisEnabled {
			return fmt.Errorf("RATING_LOCK_BACKEND=redis requires REDIS_ENABLED")
		}
	default:
		return fmt.Errorf("RATING_LOCK_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.LockBackend)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("RATING_LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("RATING_CACHE_SIZE must be positive, got %d", c.CacheSize)
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("RATING_RECONCILE_INTERVAL must not be negative, got %s", c.ReconcileInterval)
	}
	if c.ReconcileBatch < 1 {
		return fmt.Errorf("RATING_RECONCILE_BATCH must be positive, got %d", c.ReconcileBatch)
	}
	if c.RecomputeRPS < 0 {
		return fmt.Errorf("RATING_RECOMPUTE_RPS must not be negative, got %f", c.RecomputeRPS)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// Postgres returns the connection settings for database.NewPostgresPool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// Redis returns the connection settings for database.NewRedisClient.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:         c.RedisHost,
		Port:         c.RedisPort,
		Password:     c.RedisPass,
		DB:           c.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// SlowQueryThreshold returns LOG_SLOW_QUERY_MS as a duration.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
