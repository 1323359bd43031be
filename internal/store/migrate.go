package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func (d *DB) migrationProvider() (*goose.Provider, error) {
	dialect := goose.DialectPostgres
	if d.Driver == DriverSQLite {
		dialect = goose.DialectSQLite3
	}
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, d.DB.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Migrate applies all pending embedded migrations.
func (d *DB) Migrate(ctx context.Context, logger *zap.Logger) error {
	provider, err := d.migrationProvider()
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("path", r.Source.Path),
			zap.Duration("took", r.Duration),
		)
	}
	return nil
}

// SchemaVersion returns the current migration version.
func (d *DB) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := d.migrationProvider()
	if err != nil {
		return 0, err
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}
