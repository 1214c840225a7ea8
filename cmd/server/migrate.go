package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/Sigmo/internal/config"
	"github.com/soaringjerry/Sigmo/internal/db"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Long: `Applies the schema for the configured storage driver. serve does the
same on startup; this is for running it ahead of a deploy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), c.cfg, c.logger)
		},
	}
}

func migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Info("memory storage has no schema, nothing to migrate")
		return nil
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.RunPostgresMigrations(ctx, pool, cfg.Storage.MigrationsDir); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	default:
		sqlDB, err := db.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		if err := db.RunMigrations(sqlDB, cfg.Storage.MigrationsDir); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	logger.Info("migrations applied", zap.String("driver", cfg.Storage.Driver))
	return nil
}
