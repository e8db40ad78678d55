// Command migrate applies the storefront schema to Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wavethanapon/shop/internal/config"
	"github.com/wavethanapon/shop/internal/observability"
	"github.com/wavethanapon/shop/migrations"
)

const migrateTimeout = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run() error {
	databaseURL := flag.String("database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	statusOnly := flag.Bool("status", false, "print applied migrations and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *databaseURL != "" {
		cfg.DatabaseURL = *databaseURL
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set and -database-url not given")
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Development())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if cfg.EnvFile != "" {
		logger.Info("loaded env file", zap.String("path", cfg.EnvFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}

	if !*statusOnly {
		if err := migrations.Apply(ctx, pool, migrations.WithLogger(logger)); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	status, err := migrations.Status(ctx, pool)
	if err != nil {
		return err
	}
	for _, m := range status {
		logger.Info("migration", zap.String("name", m.Name), zap.Bool("applied", m.Applied))
	}
	return nil
}
