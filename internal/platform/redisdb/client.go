package redisdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/decisiontrace-backend/internal/platform/envutil"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

type Config struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"-"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	KeyPrefix   string        `yaml:"key_prefix"`
	SchemaTTL   time.Duration `yaml:"schema_ttl"`
}

func DefaultConfig() Config {
	return Config{
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "decisiontrace",
		SchemaTTL:   5 * time.Minute,
	}
}

// ApplyEnv overlays REDIS_* environment variables.
func (c Config) ApplyEnv() Config {
	c.Addr = envutil.String("REDIS_ADDR", c.Addr)
	c.Password = envutil.String("REDIS_PASSWORD", c.Password)
	c.DB = envutil.Int("REDIS_DB", c.DB)
	c.DialTimeout = envutil.Duration("REDIS_DIAL_TIMEOUT", c.DialTimeout)
	c.KeyPrefix = envutil.String("REDIS_KEY_PREFIX", c.KeyPrefix)
	c.SchemaTTL = envutil.Duration("REDIS_SCHEMA_TTL", c.SchemaTTL)
	return c
}

// New dials and pings Redis. An empty address means caching is disabled and returns (nil, nil).
func New(ctx context.Context, log *logger.Logger, cfg Config) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		log.Info("REDIS_ADDR not set; schema cache disabled")
		return nil, nil
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().DialTimeout
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("Redis connected", "addr", addr, "db", cfg.DB)
	return rdb, nil
}
