package migrations

import (
	"context"
	"fmt"

	"chain-tax-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies every embedded PostgreSQL file. Each file is idempotent
// (CREATE ... IF NOT EXISTS) and runs as one multi-statement Exec.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := pool.Exec(ctx, f.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Name, err)
		}
	}
	return nil
}
