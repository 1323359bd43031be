package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"qrattend/internal/identity"
)

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Actor converts claims into the caller identity used by services.
func (c Claims) Actor() identity.Actor {
	return identity.Actor{ID: c.Subject, Role: identity.Role(c.Role)}
}

// Signer issues and verifies HS256 tokens.
type Signer struct {
	Key        string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issue issues signed access and refresh tokens for a user.
func (s Signer) Issue(subject string, role identity.Role) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(s.AccessTTL)
	refreshExp := now.Add(s.RefreshTTL)

	access, err := s.sign(subject, role, TypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(subject, role, TypeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (s Signer) sign(subject string, role identity.Role, typ string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role: string(role),
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Key))
}

// Parse validates a token of the expected type and returns its claims.
func (s Signer) Parse(tokenStr, wantType string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.Key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if s.Issuer != "" && claims.Issuer != s.Issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Type != wantType {
		return Claims{}, errors.New("unexpected token type")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject")
	}
	return *claims, nil
}
