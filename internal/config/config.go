package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/seckill-cache/internal/codec"
	"github.com/rl1809/seckill-cache/internal/core/cache"
)

// Config represents the seckill service configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Seckill SeckillConfig `mapstructure:"seckill"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig represents the HTTP and gRPC listeners
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MySQLConfig represents the persistent store
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// RedisConfig represents the shared KV store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig represents cache-aside behaviour
type CacheConfig struct {
	Strategy       string        `mapstructure:"strategy"`
	Codec          string        `mapstructure:"codec"`
	MaxValueBytes  int           `mapstructure:"max_value_bytes"`
	ShopTTL        time.Duration `mapstructure:"shop_ttl"`
	ShopTypeTTL    time.Duration `mapstructure:"shop_type_ttl"`
	NullTTL        time.Duration `mapstructure:"null_ttl"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockRetry      RetryConfig   `mapstructure:"lock_retry"`
	RebuildWorkers int           `mapstructure:"rebuild_workers"`
	RebuildTimeout time.Duration `mapstructure:"rebuild_timeout"`
	WarmShopIDs    []int64       `mapstructure:"warm_shop_ids"`
}

// RetryConfig bounds the mutex strategy's lock wait
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
}

// SeckillConfig represents the order workflow
type SeckillConfig struct {
	VoucherTTL   time.Duration `mapstructure:"voucher_ttl"`
	OrderLockTTL time.Duration `mapstructure:"order_lock_ttl"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return errors.New("server.http_addr or server.grpc_addr is required")
	}
	if c.MySQL.DSN == "" {
		return errors.New("mysql.dsn is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if _, err := cache.ParseStrategy(c.Cache.Strategy); err != nil {
		return fmt.Errorf("cache.strategy: %w", err)
	}
	if _, err := codec.New[struct{}](c.Cache.Codec); err != nil {
		return fmt.Errorf("cache.codec: %w", err)
	}
	if c.Cache.ShopTTL <= 0 {
		return errors.New("cache.shop_ttl must be positive")
	}
	if c.Cache.NullTTL <= 0 {
		return errors.New("cache.null_ttl must be positive")
	}
	if c.Cache.LockTTL <= 0 {
		return errors.New("cache.lock_ttl must be positive")
	}
	if c.Cache.RebuildTimeout <= 0 || c.Cache.RebuildTimeout >= c.Cache.LockTTL {
		return errors.New("cache.rebuild_timeout must be positive and shorter than cache.lock_ttl")
	}
	if c.Cache.LockRetry.MaxAttempts <= 0 && c.Cache.LockRetry.MaxElapsed <= 0 {
		return errors.New("cache.lock_retry needs max_attempts or max_elapsed")
	}
	if c.Cache.RebuildWorkers <= 0 {
		return errors.New("cache.rebuild_workers must be positive")
	}
	if c.Seckill.OrderLockTTL <= 0 {
		return errors.New("seckill.order_lock_ttl must be positive")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/seckill?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		Cache: CacheConfig{
			Strategy:      string(cache.StrategyLogicalExpire),
			Codec:         codec.NameJSON,
			MaxValueBytes: 1 << 20,
			ShopTTL:       30 * time.Minute,
			ShopTypeTTL:   24 * time.Hour,
			NullTTL:       2 * time.Minute,
			LockTTL:       10 * time.Second,
			LockRetry: RetryConfig{
				InitialInterval: 50 * time.Millisecond,
				MaxInterval:     500 * time.Millisecond,
				MaxAttempts:     20,
				MaxElapsed:      3 * time.Second,
			},
			RebuildWorkers: 10,
			RebuildTimeout: 5 * time.Second,
		},
		Seckill: SeckillConfig{
			VoucherTTL:   time.Minute,
			OrderLockTTL: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
