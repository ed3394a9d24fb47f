package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum configuration LoadConfig accepts.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("THREADLINE_JWT_SECRET", "test-secret")
	t.Setenv("THREADLINE_POSTGRES_URL", "postgres://localhost/threadline?sslmode=disable")
	t.Setenv("THREADLINE_REDIS_URL", "localhost:6379")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "threadline-images", cfg.Storage.S3Bucket)
	assert.True(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("THREADLINE_PORT", "3000")
	t.Setenv("THREADLINE_TOKEN_TTL", "30m")
	t.Setenv("THREADLINE_CACHE_ENABLED", "false")
	t.Setenv("THREADLINE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Storage.CacheEnabled)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoadConfigYAMLFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "threadline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "4000"
storage:
  s3_bucket: "file-bucket"
  l1_cache_size: 64
`), 0644))
	t.Setenv("THREADLINE_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, "file-bucket", cfg.Storage.S3Bucket)
	assert.Equal(t, 64, cfg.Storage.L1CacheSize)
}

func TestEnvWinsOverFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "threadline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"4000\"\n"), 0644))
	t.Setenv("THREADLINE_CONFIG_FILE", path)
	t.Setenv("THREADLINE_PORT", "5000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"missing postgres url", func(c *Config) { c.Storage.PostgresURL = "" }},
		{"missing bucket", func(c *Config) { c.Storage.S3Bucket = "" }},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }},
		{"cache without redis", func(c *Config) { c.Storage.RedisURL = ""; c.Storage.CacheEnabled = true }},
		{"otel without endpoint", func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelEndpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Auth.JWTSecret = "secret"
			cfg.Storage.PostgresURL = "postgres://localhost/threadline"
			cfg.Storage.RedisURL = "localhost:6379"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigMissingSecret(t *testing.T) {
	t.Setenv("THREADLINE_JWT_SECRET", "")
	t.Setenv("THREADLINE_POSTGRES_URL", "postgres://localhost/threadline")
	t.Setenv("THREADLINE_CACHE_ENABLED", "false")

	_, err := LoadConfig()
	assert.Error(t, err)
}
