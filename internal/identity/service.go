package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"qrattend/internal/apperr"
)

const minPasswordLen = 6

// RegisterInput is the data accepted at sign-up.
type RegisterInput struct {
	Name          string
	Email         string
	Password      string
	Role          string
	StudentNumber string
	Department    string
}

// Service implements registration, login and user lookup.
type Service struct {
	repo   *Repository
	logger *zap.Logger
	cost   int
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, cost: bcrypt.DefaultCost}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register validates input, hashes the password and stores the user.
// Only students and teachers may self-register.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.New(apperr.Validation, "Name is required")
	}
	email := NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperr.New(apperr.Validation, "A valid email is required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}
	role := RoleStudent
	if in.Role != "" {
		parsed, err := ParseRole(in.Role)
		if err != nil || parsed == RoleAdmin {
			return nil, apperr.New(apperr.Validation, "Role must be student or teacher")
		}
		role = parsed
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.New(apperr.Conflict, "User already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Department:   strings.TrimSpace(in.Department),
	}
	if sn := strings.TrimSpace(in.StudentNumber); sn != "" {
		u.StudentNumber = &sn
	}

	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apperr.New(apperr.Conflict, "User already exists")
		}
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Authenticate verifies credentials. Unknown email and wrong password are
// reported identically.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.Unauthorized, "Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.New(apperr.Unauthorized, "Invalid credentials")
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.NotFound, "User not found")
	}
	return u, nil
}

// StudentByEmail returns the student registered with email.
func (s *Service) StudentByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetByEmailAndRole(ctx, NormalizeEmail(email), RoleStudent)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.NotFound, "Student not found")
	}
	return u, nil
}
