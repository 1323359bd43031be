package auth

import (
	"context"
	"time"

	"qrattend/internal/apperr"
	"qrattend/internal/identity"
)

// RefreshStore persists issued refresh tokens.
type RefreshStore interface {
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	RefreshTokenUsable(ctx context.Context, token string, now time.Time) (bool, error)
	RevokeRefreshToken(ctx context.Context, token string) (bool, error)
}

// Tokens issues, rotates and revokes token pairs.
type Tokens struct {
	signer Signer
	store  RefreshStore
}

// NewTokens creates a token manager.
func NewTokens(signer Signer, store RefreshStore) *Tokens {
	return &Tokens{signer: signer, store: store}
}

// Signer returns the signer used for access tokens.
func (t *Tokens) Signer() Signer {
	return t.signer
}

// Login issues a pair for u and records the refresh token.
func (t *Tokens) Login(ctx context.Context, u *identity.User) (TokenPair, error) {
	return t.issue(ctx, u.ID, u.Role)
}

func (t *Tokens) issue(ctx context.Context, subject string, role identity.Role) (TokenPair, error) {
	pair, err := t.signer.Issue(subject, role)
	if err != nil {
		return TokenPair{}, err
	}
	if err := t.store.SaveRefreshToken(ctx, subject, pair.RefreshToken, pair.RefreshExp); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh exchanges a live refresh token for a new pair. The presented token
// is revoked; presenting it again fails.
func (t *Tokens) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	unauthorized := apperr.New(apperr.Unauthorized, "Invalid refresh token")

	claims, err := t.signer.Parse(refreshToken, TypeRefresh)
	if err != nil {
		return TokenPair{}, unauthorized
	}
	usable, err := t.store.RefreshTokenUsable(ctx, refreshToken, time.Now())
	if err != nil {
		return TokenPair{}, err
	}
	if !usable {
		return TokenPair{}, unauthorized
	}
	revoked, err := t.store.RevokeRefreshToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if !revoked {
		return TokenPair{}, unauthorized
	}
	actor := claims.Actor()
	return t.issue(ctx, actor.ID, actor.Role)
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (t *Tokens) Logout(ctx context.Context, refreshToken string) error {
	_, err := t.store.RevokeRefreshToken(ctx, refreshToken)
	return err
}
