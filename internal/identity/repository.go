package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/store"
)

// ErrDuplicate is returned when an email or student number is already registered.
var ErrDuplicate = errors.New("user already exists")

// Repository persists users and refresh tokens.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, name, email, password_hash, role, student_number, department, created_at`

// Create inserts a user, assigning id and creation time.
func (r *Repository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, student_number, department, created_at)
		VALUES (:id, :name, :email, :password_hash, :role, :student_number, :department, :created_at)
	`, u)
	if store.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID returns a user, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail returns a user, or nil when absent.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// GetByEmailAndRole returns a user with the given role, or nil when absent.
func (r *Repository) GetByEmailAndRole(ctx context.Context, email string, role Role) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND role = ?`, email, role)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO refresh_tokens (token, user_id, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), token, userID, expiresAt.UTC(), false, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// RefreshTokenUsable reports whether token is stored, unrevoked and unexpired.
func (r *Repository) RefreshTokenUsable(ctx context.Context, token string, now time.Time) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`
		SELECT COUNT(*) FROM refresh_tokens
		WHERE token = ? AND revoked = ? AND expires_at > ?
	`), token, false, now.UTC())
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return count > 0, nil
}

// RevokeRefreshToken marks a token revoked. It reports whether a live token was revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE refresh_tokens SET revoked = ? WHERE token = ? AND revoked = ?`), true, token, false)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return n > 0, nil
}
