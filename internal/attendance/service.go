package attendance

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"qrattend/internal/apperr"
	"qrattend/internal/classes"
	"qrattend/internal/identity"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/sessions"
)

// EventMarked is published after a check-in commits.
const EventMarked = "attendance.marked"

const defaultPublishTimeout = 2 * time.Second

// Outcome classes for logging and metrics.
const (
	outcomeSuccess       = "success"
	outcomeInvalid       = "invalid_request"
	outcomeUnknownCode   = "unknown_code"
	outcomeExpired       = "expired"
	outcomeInactive      = "inactive"
	outcomeClassMismatch = "class_mismatch"
	outcomeDanglingClass = "dangling_class"
	outcomeNotEnrolled   = "not_enrolled"
	outcomeDuplicate     = "duplicate"
	outcomeDuplicateRace = "duplicate_race"
	outcomeError         = "error"
)

// SessionLookup resolves a session by code, returning nil when unknown.
type SessionLookup interface {
	GetByCode(ctx context.Context, code string) (*sessions.Session, error)
}

// ClassLookup resolves a class by id, returning nil when unknown.
type ClassLookup interface {
	Get(ctx context.Context, id string) (*classes.Class, error)
}

// Ledger is the write side of the attendance store.
type Ledger interface {
	HasEntry(ctx context.Context, classID, studentID string, w Window) (bool, error)
	Create(ctx context.Context, rec *Record) error
}

// Publisher delivers events to the queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// MarkedEvent is the payload of EventMarked.
type MarkedEvent struct {
	AttendanceID string    `json:"attendanceId"`
	ClassID      string    `json:"classId"`
	StudentID    string    `json:"studentId"`
	SessionID    string    `json:"sessionId"`
	MarkedAt     time.Time `json:"markedAt"`
}

// Confirmation is returned for a committed check-in.
type Confirmation struct {
	ClassName string
	Record    Record
}

// Service validates and commits check-ins.
type Service struct {
	sessions  SessionLookup
	classes   ClassLookup
	ledger    Ledger
	publisher Publisher
	calendar  Calendar
	logger    *zap.Logger
	now       func() time.Time

	publishTimeout time.Duration
}

// NewService wires the check-in workflow. publisher may be nil.
func NewService(sessions SessionLookup, classes ClassLookup, ledger Ledger, publisher Publisher, calendar Calendar, logger *zap.Logger) *Service {
	return &Service{
		sessions:  sessions,
		classes:   classes,
		ledger:    ledger,
		publisher: publisher,
		calendar:  calendar,
		logger:    logger,
		now:       time.Now,

		publishTimeout: defaultPublishTimeout,
	}
}

// Mark redeems a located session for actor at the current time.
func (s *Service) Mark(ctx context.Context, actor identity.Actor, loc Locator) (*Confirmation, error) {
	conf, outcome, err := s.mark(ctx, actor, loc)
	metrics.RedemptionsTotal.WithLabelValues(outcome).Inc()

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.String("student_id", actor.ID),
	}
	switch outcome {
	case outcomeSuccess:
		s.logger.Info("attendance marked", append(fields,
			zap.String("class_id", conf.Record.ClassID),
			zap.String("attendance_id", conf.Record.ID),
		)...)
	case outcomeDanglingClass:
		s.logger.Warn("session references missing class", append(fields, zap.Error(err))...)
	case outcomeError:
		s.logger.Error("attendance mark failed", append(fields, zap.Error(err))...)
	default:
		s.logger.Info("attendance rejected", append(fields, zap.Error(err))...)
	}
	return conf, err
}

func (s *Service) mark(ctx context.Context, actor identity.Actor, loc Locator) (*Confirmation, string, error) {
	if loc.SessionCode == "" {
		return nil, outcomeInvalid, apperr.New(apperr.Validation, "Session code is required")
	}
	invalid := apperr.New(apperr.InvalidOrExpiredToken, "Invalid or expired QR code")

	sess, err := s.sessions.GetByCode(ctx, loc.SessionCode)
	if err != nil {
		return nil, outcomeError, err
	}
	if sess == nil {
		return nil, outcomeUnknownCode, invalid
	}
	if loc.ClassID != "" && loc.ClassID != sess.ClassID {
		return nil, outcomeClassMismatch, apperr.New(apperr.TokenMismatch, "QR code does not belong to this class")
	}

	now := s.now()
	if !sess.Redeemable(now) {
		if sess.Expired(now) {
			return nil, outcomeExpired, invalid
		}
		return nil, outcomeInactive, invalid
	}

	class, err := s.classes.Get(ctx, sess.ClassID)
	if err != nil {
		return nil, outcomeError, err
	}
	if class == nil {
		return nil, outcomeDanglingClass, apperr.Wrap(apperr.NotFound, "Class not found",
			errors.New("session "+sess.ID+" references class "+sess.ClassID))
	}
	if !class.HasStudent(actor.ID) {
		return nil, outcomeNotEnrolled, apperr.New(apperr.NotEnrolled, "You are not enrolled in this class")
	}

	day := s.calendar.Day(now)
	duplicate := apperr.New(apperr.DuplicateAttendance, "Attendance already marked for today")

	exists, err := s.ledger.HasEntry(ctx, class.ID, actor.ID, day)
	if err != nil {
		return nil, outcomeError, err
	}
	if exists {
		return nil, outcomeDuplicate, duplicate
	}

	sessionID := sess.ID
	rec := &Record{
		ClassID:   class.ID,
		StudentID: actor.ID,
		Day:       day.Start,
		Status:    StatusPresent,
		MarkedAt:  now.UTC().Truncate(time.Microsecond),
		SessionID: &sessionID,
	}
	if err := s.ledger.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return nil, outcomeDuplicateRace, duplicate
		}
		return nil, outcomeError, err
	}

	s.publish(ctx, rec)
	return &Confirmation{ClassName: class.Name, Record: *rec}, outcomeSuccess, nil
}

func (s *Service) publish(ctx context.Context, rec *Record) {
	if s.publisher == nil {
		return
	}
	msg, err := queue.NewMessage(EventMarked, MarkedEvent{
		AttendanceID: rec.ID,
		ClassID:      rec.ClassID,
		StudentID:    rec.StudentID,
		SessionID:    *rec.SessionID,
		MarkedAt:     rec.MarkedAt,
	})
	if err == nil {
		// The record is committed; a caller hanging up must not drop the event.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		err = s.publisher.Publish(pctx, msg)
		cancel()
	}
	if err != nil {
		s.logger.Warn("publish attendance event", zap.String("attendance_id", rec.ID), zap.Error(err))
	}
}
