package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"recurring-billing-backend/internal/logger"
)

// PoolOptions sizes the database/sql connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects with the named driver ("postgres" for lib/pq, "pgx" for
// jackc/pgx) and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts PoolOptions) (*sql.DB, error) {
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Store reads recurring schedules and the transaction ledger from Postgres.
type Store struct {
	db           *sql.DB
	maxFollowers int
}

// NewStore returns a store whose snapshots fan ledger lookups out over at
// most maxFollowers extra connections.
func NewStore(db *sql.DB, maxFollowers int) *Store {
	if maxFollowers < 1 {
		maxFollowers = 1
	}
	return &Store{db: db, maxFollowers: maxFollowers}
}

func (s *Store) Ping(ctx context.Context) error {
	logger.DatabaseCall("ping", "")
	err := s.db.PingContext(ctx)
	logger.DatabaseResult("ping", 0, err)
	return err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
