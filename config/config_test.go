package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, RoleAll, cfg.Role)
	assert.Equal(t, "orders", cfg.CheckoutQueue)
	assert.Equal(t, "orders-finalize", cfg.FinalizeQueue)
	assert.Equal(t, 200, cfg.ListLimit)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.True(t, cfg.RunsAPI())
	assert.True(t, cfg.RunsProcess())
	assert.True(t, cfg.RunsFinalize())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SERVICE_ROLE", "Finalize")
	t.Setenv("CONSUMER_WORKERS", "9")
	t.Setenv("PUBLISH_TIMEOUT", "750ms")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("CONSUMER_PREFETCH", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, RoleFinalize, cfg.Role)
	assert.Equal(t, 9, cfg.ConsumerWorkers)
	assert.Equal(t, 750*time.Millisecond, cfg.PublishTimeout)
	assert.InDelta(t, 0.25, cfg.BreakerFailureRatio, 1e-9)
	assert.Equal(t, 16, cfg.ConsumerPrefetch)

	assert.False(t, cfg.RunsAPI())
	assert.False(t, cfg.RunsProcess())
	assert.True(t, cfg.RunsFinalize())
}

func TestLoadConfig_SecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(path, []byte("  s3cret\n"), 0o600))

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_SECRET_FILE", path)

	assert.Equal(t, "s3cret", LoadConfig().JWTSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "api with secret",
			mutate: func(c *Config) { c.JWTSecret = "s" },
		},
		{
			name:    "api without secret",
			mutate:  func(c *Config) { c.JWTSecret = "" },
			wantErr: "JWT_SECRET is required to serve the API",
		},
		{
			name:   "consumer only needs no secret",
			mutate: func(c *Config) { c.Role = RoleProcess; c.JWTSecret = "" },
		},
		{
			name:    "unknown role",
			mutate:  func(c *Config) { c.Role = "worker" },
			wantErr: `unknown SERVICE_ROLE "worker"`,
		},
		{
			name:    "no workers",
			mutate:  func(c *Config) { c.JWTSecret = "s"; c.ConsumerWorkers = 0 },
			wantErr: "CONSUMER_WORKERS and CONSUMER_PREFETCH must be positive",
		},
		{
			name:    "zero publish timeout",
			mutate:  func(c *Config) { c.JWTSecret = "s"; c.PublishTimeout = 0 },
			wantErr: "PUBLISH_TIMEOUT must be positive, got 0s",
		},
		{
			name:    "negative publish timeout",
			mutate:  func(c *Config) { c.Role = RoleProcess; c.PublishTimeout = -time.Second },
			wantErr: "PUBLISH_TIMEOUT must be positive, got -1s",
		},
		{
			name:    "redis without ttl",
			mutate:  func(c *Config) { c.JWTSecret = "s"; c.RedisAddr = "localhost:6379"; c.IdempotencyTTL = 0 },
			wantErr: "IDEMPOTENCY_TTL must be positive, got 0s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
