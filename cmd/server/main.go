// Package main implements the entry point for the contacts ledger API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: config.yaml or $LEDGER_CONFIG_FILE)")
	migrateOnly := flag.Bool("migrate", false, "apply pending schema migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *migrateOnly); err != nil {
		log.Fatalf("contacts-ledger: %v", err)
	}
}

// run loads configuration, opens the configured store and either applies the
// migrations and returns (migrateOnly) or serves HTTP until ctx is done.
func run(ctx context.Context, configPath string, migrateOnly bool) error {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}
	logger.Info("Server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("database_driver", cfg.Database.Driver))

	ledgerStore, err := setupAppStore(ctx, cfg, logger, true)
	if err != nil {
		return fmt.Errorf("failed to set up store: %w", err)
	}

	if migrateOnly {
		logger.Info("Migrations applied, exiting")
		return ledgerStore.Close()
	}

	app, err := newApplication(cfg, logger, ledgerStore)
	if err != nil {
		_ = ledgerStore.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
