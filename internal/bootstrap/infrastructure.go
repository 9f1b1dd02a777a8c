package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leadwatch/leadwatch/config"
	"github.com/redis/go-redis/v9"
)

// Infrastructure holds the shared connections a process opens once at startup.
// Redis is nil unless REDIS_ENABLED is set.
type Infrastructure struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// OpenInfrastructure connects Postgres and, when enabled, Redis. Nothing is left open on error.
func OpenInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := ConnectDB(DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	infra := &Infrastructure{DB: db}
	if !cfg.Redis.Enabled {
		return infra, nil
	}

	infra.Redis, err = ConnectRedis(DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
	}
	return infra, nil
}

// Close releases every open connection and reports all failures.
func (i *Infrastructure) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Services wires the full service graph on top of the open connections.
func (i *Infrastructure) Services(cfg *config.AppConfig, logger *slog.Logger) (ServiceContainer, error) {
	services, err := NewServices(&ServiceDeps{
		Config:      cfg,
		DB:          i.DB,
		RedisClient: i.Redis,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire services: %w", err)
	}
	return services, nil
}
