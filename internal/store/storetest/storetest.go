// Package storetest provides migrated in-memory databases for tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qrattend/internal/store"
)

// Open returns a fresh, migrated in-memory SQLite database closed on cleanup.
func Open(t *testing.T) *store.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := store.NewDB(context.Background(), store.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.Migrate(context.Background(), zap.NewNop()); err != nil {
		db.Close()
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// SeedUser inserts a user row directly and returns its id.
func SeedUser(t *testing.T, db *store.DB, name, role string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.ExecContext(context.Background(), db.Rebind(`
		INSERT INTO users (id, name, email, password_hash, role, department, created_at)
		VALUES (?, ?, ?, 'x', ?, '', ?)
	`), id, name, strings.ToLower(name)+"-"+id[:8]+"@example.com", role, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return id
}
