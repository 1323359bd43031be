package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qrattend/internal/apperr"
	"qrattend/internal/classes"
	"qrattend/internal/identity"
	"qrattend/internal/metrics"
)

const codeBytes = 16

// ClassFinder returns a class by id, or nil when it does not exist.
type ClassFinder interface {
	Get(ctx context.Context, id string) (*classes.Class, error)
}

// Issued is the result of opening a new attendance window.
type Issued struct {
	SessionID   string    `json:"sessionId"`
	SessionCode string    `json:"sessionCode"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ClassName   string    `json:"className"`
	QRData      string    `json:"qrData"`
}

// QRPayload is the JSON document clients encode into the QR image. It only
// locates the session; redemption re-reads everything from storage.
type QRPayload struct {
	SessionCode string    `json:"sessionCode"`
	ClassID     string    `json:"classId"`
	ClassName   string    `json:"className"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Issuer opens, finds and closes QR sessions.
type Issuer struct {
	repo    *Repository
	classes ClassFinder
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewIssuer creates an issuer whose sessions stay open for ttl.
func NewIssuer(repo *Repository, classes ClassFinder, ttl time.Duration, logger *zap.Logger) *Issuer {
	return &Issuer{
		repo:    repo,
		classes: classes,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Create opens a new session for a class owned by actor. Earlier sessions of
// the class are deactivated first on a best-effort basis.
func (i *Issuer) Create(ctx context.Context, classID string, actor identity.Actor) (*Issued, error) {
	c, err := i.classes.Get(ctx, classID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.NotFound, "Class not found")
	}
	if !c.OwnedBy(actor) {
		return nil, apperr.New(apperr.Forbidden, "Access denied")
	}

	if n, err := i.repo.DeactivateForClass(ctx, c.ID); err != nil {
		i.logger.Warn("deactivate previous sessions", zap.String("class_id", c.ID), zap.Error(err))
	} else if n > 0 {
		i.logger.Debug("previous sessions deactivated", zap.String("class_id", c.ID), zap.Int64("count", n))
	}

	code, err := newCode()
	if err != nil {
		return nil, err
	}
	now := i.now().UTC().Truncate(time.Microsecond)
	s := &Session{
		ID:        uuid.NewString(),
		ClassID:   c.ID,
		TeacherID: actor.ID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
		Active:    true,
	}
	if err := i.repo.Insert(ctx, s); err != nil {
		return nil, err
	}

	qr, err := json.Marshal(QRPayload{
		SessionCode: s.Code,
		ClassID:     c.ID,
		ClassName:   c.Name,
		ExpiresAt:   s.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode qr payload: %w", err)
	}

	metrics.SessionsIssuedTotal.Inc()
	i.logger.Info("session issued",
		zap.String("session_id", s.ID),
		zap.String("class_id", c.ID),
		zap.Time("expires_at", s.ExpiresAt),
	)
	return &Issued{
		SessionID:   s.ID,
		SessionCode: s.Code,
		ExpiresAt:   s.ExpiresAt,
		ClassName:   c.Name,
		QRData:      string(qr),
	}, nil
}

// FindActive returns the newest redeemable session of a class, or nil when
// the class has none open.
func (i *Issuer) FindActive(ctx context.Context, classID string) (*Session, error) {
	return i.repo.FindActive(ctx, classID, i.now())
}

// ActiveFor is FindActive for a caller who may see the class: its owner, an
// admin or an enrolled student.
func (i *Issuer) ActiveFor(ctx context.Context, classID string, actor identity.Actor) (*Session, error) {
	c, err := i.classes.Get(ctx, classID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.NotFound, "Class not found")
	}
	if !c.ViewableBy(actor) && !c.HasStudent(actor.ID) {
		return nil, apperr.New(apperr.Forbidden, "Access denied")
	}
	return i.FindActive(ctx, c.ID)
}

// Invalidate closes a session. Closing an already inactive session succeeds.
func (i *Issuer) Invalidate(ctx context.Context, sessionID string, actor identity.Actor) error {
	s, err := i.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return apperr.New(apperr.NotFound, "Session not found")
	}
	if s.TeacherID != actor.ID {
		return apperr.New(apperr.Forbidden, "Access denied")
	}
	changed, err := i.repo.Deactivate(ctx, s.ID)
	if err != nil {
		return err
	}
	if changed {
		i.logger.Info("session invalidated", zap.String("session_id", s.ID), zap.String("class_id", s.ClassID))
	}
	return nil
}

func newCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}
	return hex.EncodeToString(b), nil
}
