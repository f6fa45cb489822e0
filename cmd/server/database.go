package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/contacts-ledger/internal/config"
	"github.com/phrazzld/contacts-ledger/internal/platform/memory"
	"github.com/phrazzld/contacts-ledger/internal/platform/mongo"
	"github.com/phrazzld/contacts-ledger/internal/platform/postgres"
	"github.com/phrazzld/contacts-ledger/internal/platform/sqlite"
	"github.com/phrazzld/contacts-ledger/internal/redact"
	"github.com/phrazzld/contacts-ledger/internal/store"
)

// setupAppStore opens the LedgerStore selected by database.driver. When
// migrate is set, pending schema migrations (or mongo indexes) are applied
// before the store is returned.
func setupAppStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	migrate bool,
) (store.LedgerStore, error) {
	log := logger.With(slog.String("driver", cfg.Database.Driver))

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := migrateSQL(ctx, db, migrate, log, postgres.Migrate); err != nil {
			return nil, err
		}
		log.Info("Database connection established")
		return postgres.NewStore(db, logger), nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := migrateSQL(ctx, db, migrate, log, sqlite.Migrate); err != nil {
			return nil, err
		}
		log.Info("Database connection established")
		return sqlite.NewStore(db, logger), nil

	case config.DriverMongo:
		client, err := mongo.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s := mongo.NewStore(client, cfg.Database.Name, logger)
		if migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("failed to create indexes: %w", err)
			}
		}
		log.Info("Database connection established", slog.String("database", s.DatabaseName()))
		return s, nil

	case config.DriverMemory:
		log.Warn("Using the in-memory store; data is lost on restart")
		return memory.NewStore(logger), nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

type migrateFunc func(ctx context.Context, db *sql.DB, log *slog.Logger) error

// migrateSQL runs fn against db when enabled, closing db on failure.
func migrateSQL(ctx context.Context, db *sql.DB, enabled bool, log *slog.Logger, fn migrateFunc) error {
	if !enabled {
		return nil
	}
	if err := fn(ctx, db, log); err != nil {
		_ = db.Close()
		log.Error("Migrations failed", slog.String("error", redact.Error(err)))
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
