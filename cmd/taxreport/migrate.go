package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chain-tax-lab/internal/storage/migrations"
	pgstore "chain-tax-lab/internal/storage/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Apply the embedded PostgreSQL and ClickHouse migrations for every configured DSN.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pgDSN := cfg.Storage.PostgresDSN
			chDSN := cfg.Storage.ClickHouseDSN
			if pgDSN == "" && chDSN == "" {
				return errors.New("nothing to migrate: set storage.postgres_dsn or storage.clickhouse_dsn")
			}

			if pgDSN != "" {
				pool, err := pgstore.NewPool(ctx, pgDSN)
				if err != nil {
					return fmt.Errorf("connect postgres: %w", err)
				}
				err = migrations.RunPostgresMigrations(ctx, pool)
				pool.Close()
				if err != nil {
					return err
				}
				log.Info().Msg("postgres migrations applied")
			}

			if chDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, chDSN)
				if err != nil {
					return err
				}
				if err := conn.Close(); err != nil {
					log.Warn().Err(err).Msg("close clickhouse")
				}
				log.Info().Msg("clickhouse migrations applied")
			}
			return nil
		},
	}
}
