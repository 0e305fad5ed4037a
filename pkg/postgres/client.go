// Package postgres wraps the pgx pool with the small set of primitives the
// persistence adapters share: prepared statements and advisory locking.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Client is a PostgreSQL client with connection pooling and prepared
// statements.
type Client struct {
	DB *pgxpool.Pool
}

// NewClient creates a new PostgreSQL client.
func NewClient(db *pgxpool.Pool) *Client {
	return &Client{DB: db}
}

// PrepareStatements prepares commonly used SQL statements.
func (c *Client) PrepareStatements(ctx context.Context, statements map[string]string) error {
	conn, err := c.DB.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for statement preparation: %w", err)
	}
	defer conn.Release()

	for name, sql := range statements {
		if _, err := conn.Conn().Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
	}
	return nil
}

// AcquireTxLock blocks until the transaction-scoped advisory lock is held.
// The lock releases automatically at commit or rollback.
func (c *Client) AcquireTxLock(ctx context.Context, tx pgx.Tx, lockID int64) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire advisory lock %d: %w", lockID, err)
	}
	return nil
}
