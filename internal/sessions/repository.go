package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qrattend/internal/store"
)

// Repository persists QR sessions.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, class_id, teacher_id, session_code, created_at, expires_at, active`

// Insert stores a new session.
func (r *Repository) Insert(ctx context.Context, s *Session) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO qr_sessions (id, class_id, teacher_id, session_code, created_at, expires_at, active)
		VALUES (:id, :class_id, :teacher_id, :session_code, :created_at, :expires_at, :active)
	`, s)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// DeactivateForClass clears the active flag on every session of a class and
// returns how many rows changed.
func (r *Repository) DeactivateForClass(ctx context.Context, classID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE qr_sessions SET active = ? WHERE class_id = ? AND active = ?
	`), false, classID, true)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}
	return res.RowsAffected()
}

// Deactivate clears the active flag on one session. It reports whether the
// flag was set before the call.
func (r *Repository) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE qr_sessions SET active = ? WHERE id = ? AND active = ?
	`), false, id, true)
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	return n > 0, nil
}

// FindActive returns the newest active, unexpired session of a class, or nil.
func (r *Repository) FindActive(ctx context.Context, classID string, now time.Time) (*Session, error) {
	return r.getOne(ctx, `
		SELECT `+sessionColumns+` FROM qr_sessions
		WHERE class_id = ? AND active = ? AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`, classID, true, now.UTC())
}

// GetByCode returns a session by its code regardless of state, or nil.
func (r *Repository) GetByCode(ctx context.Context, code string) (*Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM qr_sessions WHERE session_code = ?`, code)
}

// GetByID returns a session regardless of state, or nil.
func (r *Repository) GetByID(ctx context.Context, id string) (*Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM qr_sessions WHERE id = ?`, id)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}
