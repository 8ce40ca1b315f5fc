package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL": "postgres://localhost/clinica",
		"REDIS_URL":    "redis://localhost:6379",
		"PORT":         "",
		"APP_ENV":      "",
	})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 5, cfg.PinAttemptMax)
	assert.True(t, cfg.WebhookEnabled)
	assert.Equal(t, 6, cfg.WebhookMaxAttempts)
	assert.Equal(t, float64(1), cfg.TracingSampling)
}

func TestLoadRequiresDatabase(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379",
	})
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":         "postgres://localhost/clinica",
		"REDIS_URL":            "redis://localhost:6379",
		"PORT":                 "9090",
		"CATALOG_CACHE_TTL":    "30s",
		"PIN_ATTEMPT_MAX":      "3",
		"WEBHOOK_ENABLED":      "false",
		"WORKER_BATCH":         "25",
		"CORS_ALLOWED_ORIGINS": "https://app.clinica.dev, https://admin.clinica.dev",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr())
	assert.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
	assert.Equal(t, 3, cfg.PinAttemptMax)
	assert.False(t, cfg.WebhookEnabled)
	assert.Equal(t, 25, cfg.WorkerBatch)
	assert.Equal(t, []string{"https://app.clinica.dev", "https://admin.clinica.dev"}, cfg.CORSAllowedOrigins)
}

func TestBadDurationFallsBack(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":      "postgres://localhost/clinica",
		"REDIS_URL":         "redis://localhost:6379",
		"CATALOG_CACHE_TTL": "not-a-duration",
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
}
