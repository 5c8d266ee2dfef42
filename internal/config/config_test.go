package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWith(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 8012, cfg.HTTPPort)
	assert.Equal(t, BackendPostgres, cfg.StorageBackend)
	assert.Equal(t, BackendMemory, cfg.LockBackend)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "rating_db", cfg.Postgres().DBName)
	assert.Equal(t, "localhost:6379", cfg.Redis().Addr())
	assert.Equal(t, 500*time.Millisecond, cfg.SlowQueryThreshold())
	assert.Equal(t, 1.0, cfg.RecomputeRPS)
	assert.Equal(t, 3, cfg.RecomputeBurst)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := loadWith(map[string]string{
		"RATING_STORAGE_BACKEND":    "memory",
		"RATING_LOCK_BACKEND":       "redis",
		"RATING_RECONCILE_INTERVAL": "0s",
		"KAFKA_BROKERS":             "k1:9092,k2:9092",
		"KAFKA_ENABLED":             "false",
	})
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, BackendRedis, cfg.LockBackend)
	assert.Zero(t, cfg.ReconcileInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr string
	}{
		{"port", map[string]string{"RATING_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"storage backend", map[string]string{"RATING_STORAGE_BACKEND": "mongo"}, "RATING_STORAGE_BACKEND"},
		{"lock backend", map[string]string{"RATING_LOCK_BACKEND": "etcd"}, "RATING_LOCK_BACKEND"},
		{"redis lock without redis", map[string]string{"RATING_LOCK_BACKEND": "redis", "REDIS_ENABLED": "false"}, "requires REDIS_ENABLED"},
		{"lock ttl", map[string]string{"RATING_LOCK_TTL": "0s"}, "RATING_LOCK_TTL"},
		{"cache size", map[string]string{"RATING_CACHE_SIZE": "0"}, "RATING_CACHE_SIZE"},
		{"reconcile batch", map[string]string{"RATING_RECONCILE_BATCH": "0"}, "RATING_RECONCILE_BATCH"},
		{"recompute rps", map[string]string{"RATING_RECOMPUTE_RPS": "-1"}, "RATING_RECOMPUTE_RPS"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "1.5"}, "OTEL_SAMPLE_RATE"},
		{"bad duration", map[string]string{"RATING_CACHE_TTL": "soon"}, "load rating config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadWith(tt.vars)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
