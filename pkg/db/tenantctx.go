package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BeginTxWithApplication starts a read transaction and sets app.application_id
// so row-level security policies on branding and role tables apply.
// Call tx.Rollback(ctx) when done; reads never need Commit.
func BeginTxWithApplication(ctx context.Context, pool *pgxpool.Pool, applicationID string) (pgx.Tx, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('app.application_id', $1, true)", applicationID); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}
