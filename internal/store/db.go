package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps sqlx.DB for Postgres (pgx) or SQLite. Queries are written with
// '?' placeholders and rebound for the active driver.
type DB struct {
	*sqlx.DB
	Driver string
}

// NewDB opens and pings a database connection with sane defaults.
func NewDB(ctx context.Context, driver, dsn string) (*DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		db, err = sqlx.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	case DriverSQLite:
		db, err = sqlx.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// a single writer avoids SQLITE_BUSY and keeps in-memory databases alive
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &DB{DB: db, Driver: driver}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.DB == nil {
		return false
	}
	return d.PingContext(ctx) == nil
}

// InTx runs fn inside a transaction, rolling back when fn fails.
func (d *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
