package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"renewal-service/internal/logging"
	"renewal-service/internal/utils"
)

// Pool is the subset of pgxpool.Pool used by the repositories.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type DB struct {
	Pool    Pool
	timeout time.Duration
}

// New opens a pool and waits for the database to answer a ping.
func New(ctx context.Context, dsn string, timeout time.Duration, logger *logging.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	d := NewWithPool(pool, timeout)
	err = utils.Retry(ctx, logger, 5, 2*time.Second, func() error {
		pingCtx, cancel := d.withTimeout(ctx)
		defer cancel()
		return pool.Ping(pingCtx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return d, nil
}

func NewWithPool(pool Pool, timeout time.Duration) *DB {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DB{Pool: pool, timeout: timeout}
}

func (d *DB) Close() {
	d.Pool.Close()
}

// withTimeout bounds a single statement.
func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}
