package store

import (
	"context"
	"sync"
)

// Handle owns the process-wide database connection. Get connects on first
// use and reuses the connection afterwards; a failed connect is not cached.
type Handle struct {
	driver string
	dsn    string

	mu sync.Mutex
	db *DB
}

// NewHandle prepares a handle without connecting.
func NewHandle(driver, dsn string) *Handle {
	return &Handle{driver: driver, dsn: dsn}
}

// Get returns the shared connection, connecting if needed.
func (h *Handle) Get(ctx context.Context) (*DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db != nil {
		return h.db, nil
	}
	db, err := NewDB(ctx, h.driver, h.dsn)
	if err != nil {
		return nil, err
	}
	h.db = db
	return db, nil
}

// Close releases the connection. A later Get reconnects.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}
