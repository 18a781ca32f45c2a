package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "logical_expire", cfg.Cache.Strategy)
	assert.Equal(t, 2*time.Minute, cfg.Cache.NullTTL)
	assert.Equal(t, 20, cfg.Cache.LockRetry.MaxAttempts)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  http_addr: ":9000"
cache:
  strategy: mutex
  codec: msgpack
  shop_ttl: 10m
  warm_shop_ids: [1, 2, 3]
  lock_retry:
    initial_interval: 10ms
    max_attempts: 5
seckill:
  order_lock_ttl: 5s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, "mutex", cfg.Cache.Strategy)
	assert.Equal(t, "msgpack", cfg.Cache.Codec)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ShopTTL)
	assert.Equal(t, []int64{1, 2, 3}, cfg.Cache.WarmShopIDs)
	assert.Equal(t, 10*time.Millisecond, cfg.Cache.LockRetry.InitialInterval)
	assert.Equal(t, 5, cfg.Cache.LockRetry.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Seckill.OrderLockTTL)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Cache.Strategy = "lru" }},
		{"unknown codec", func(c *Config) { c.Cache.Codec = "gob" }},
		{"no dsn", func(c *Config) { c.MySQL.DSN = "" }},
		{"no redis", func(c *Config) { c.Redis.Addr = "" }},
		{"no listeners", func(c *Config) { c.Server.HTTPAddr, c.Server.GRPCAddr = "", "" }},
		{"unbounded lock wait", func(c *Config) { c.Cache.LockRetry.MaxAttempts, c.Cache.LockRetry.MaxElapsed = 0, 0 }},
		{"no rebuild workers", func(c *Config) { c.Cache.RebuildWorkers = 0 }},
		{"rebuild outlives lock", func(c *Config) { c.Cache.RebuildTimeout = c.Cache.LockTTL }},
		{"no rebuild timeout", func(c *Config) { c.Cache.RebuildTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
