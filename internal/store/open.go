package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/candy-heist/internal/database"
	"github.com/Proton-105/candy-heist/pkg/config"
)

// Open builds the backend cfg.Store selects and wraps it in a Store. The redis backend needs
// client; the postgres backend opens its own pool and migrates the schema first.
func Open(ctx context.Context, cfg config.Config, client *redis.Client, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var backend Backend
	switch cfg.Store.Backend {
	case "", "file":
		fb, err := OpenFileBackend(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		backend = fb
	case "redis":
		if client == nil {
			return nil, errors.New("store: redis backend needs a redis client")
		}
		backend = NewRedisBackend(client, log, cfg.Store.MaxAttempts)
	case "postgres":
		db, err := openPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		backend = NewPostgresBackend(db, log, cfg.Store.MaxAttempts)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Store.Backend)
	}

	log.Info("ledger store opened", slog.String("backend", backend.Name()))
	return New(backend, opts), nil
}

func openPostgres(ctx context.Context, cfg config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := database.NewMigrator(db, log).Apply(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return db, nil
}
