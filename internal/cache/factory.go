package cache

import (
	"fmt"
	"log/slog"
	"time"
)

// StoreType identifies a Store implementation
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeNone   StoreType = "none"
)

// Config selects and configures a Store
type Config struct {
	Type     StoreType
	TTL      time.Duration
	MaxBytes int
	Redis    RedisConfig
}

// New creates a Store for the configured type
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		slog.Info("using in-memory translation cache", "ttl", cfg.TTL, "max_bytes", cfg.MaxBytes)
		return NewMemoryStore(cfg.TTL, cfg.MaxBytes), nil

	case StoreTypeRedis:
		redisCfg := cfg.Redis
		if redisCfg.TTL == 0 {
			redisCfg.TTL = cfg.TTL
		}
		store, err := NewRedisStore(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		slog.Info("using redis translation cache", "addr", redisCfg.Addr, "ttl", redisCfg.TTL)
		return store, nil

	case StoreTypeNone:
		slog.Info("translation cache disabled")
		return NopStore{}, nil

	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
