// Package store opens the run store selected by the trainer configuration.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/morepork/cmd/trainer/config"
	"github.com/HatiCode/morepork/pkg/storage"
)

// New returns the configured store and a function that releases it.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage {
	case "redis":
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, noop, fmt.Errorf("redis store: %w", err)
		}
		logger.Info("using redis run store", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		return s, s.Close, nil
	case "sqlite":
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("sqlite store: %w", err)
		}
		logger.Info("using sqlite run store", "path", cfg.SQLitePath)
		return s, s.Close, nil
	case "memory", "":
		logger.Info("using in-memory run store")
		return storage.NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
