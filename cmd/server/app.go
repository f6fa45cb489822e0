package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/contacts-ledger/internal/config"
	"github.com/phrazzld/contacts-ledger/internal/events"
	"github.com/phrazzld/contacts-ledger/internal/service/ledger"
	"github.com/phrazzld/contacts-ledger/internal/store"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	store         store.LedgerStore
	eventEmitter  *events.InMemoryEventEmitter
	ledgerService ledger.Service
}

// newApplication wires the service layer on top of an already opened store.
func newApplication(cfg *config.Config, logger *slog.Logger, ledgerStore store.LedgerStore) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		store:  ledgerStore,
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(events.NewAuditLogHandler(logger))

	svc, err := ledger.NewService(
		ledgerStore,
		app.eventEmitter,
		ledger.ConfigFrom(cfg.Ledger, cfg.Export),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger service: %w", err)
	}
	app.ledgerService = svc

	logger.Info("Application initialized successfully",
		slog.Int("max_apply_attempts", cfg.Ledger.MaxApplyAttempts),
		slog.String("export_timezone", cfg.Export.Timezone))
	return app, nil
}

// Run serves HTTP until ctx is done, then shuts down and releases the store.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Error("Error closing store", "error", err)
		}
	}
	app.logger.Info("Application shutdown completed")
}
