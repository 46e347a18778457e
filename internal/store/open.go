// ABOUTME: Backend selection for the session store from configuration
// ABOUTME: Maps session.backend to the Redis, SQLite or in-memory implementation

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/filedesk/internal/config"
)

// Open creates the session store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger) (SessionStore, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			LockTTL:   cfg.Redis.LockTTL,
		}, logger)
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
