package main

import (
	"errors"
	"fmt"

	"github.com/PaulFidika/subkit/jobs"
	migrations "github.com/PaulFidika/subkit/migrations/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

func newMigrateCmd(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the transaction ledger and job queue migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.PostgresDSN == "" {
				return errors.New("postgres_dsn is required")
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			db := stdlib.OpenDBFromPool(pool)
			defer db.Close()
			applied, err := migrations.Migrate(ctx, db, cfg.PostgresSchema)
			if err != nil {
				return fmt.Errorf("ledger migrations: %w", err)
			}
			for _, name := range applied {
				log.WithField("migration", name).Info("applied")
			}
			if err := jobs.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("river migrations: %w", err)
			}
			log.Info("migrations complete")
			return nil
		},
	}
}
