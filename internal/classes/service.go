package classes

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"qrattend/internal/apperr"
	"qrattend/internal/identity"
)

// StudentFinder resolves a student account by email.
type StudentFinder interface {
	StudentByEmail(ctx context.Context, email string) (*identity.User, error)
}

// CreateInput is the data accepted when a class is created.
type CreateInput struct {
	Name       string
	Code       string
	Department string
	Schedule   Schedule
}

// Service implements class management and enrollment.
type Service struct {
	repo     *Repository
	students StudentFinder
	logger   *zap.Logger
}

// NewService creates a service.
func NewService(repo *Repository, students StudentFinder, logger *zap.Logger) *Service {
	return &Service{repo: repo, students: students, logger: logger}
}

// Create stores a new class owned by actor.
func (s *Service) Create(ctx context.Context, actor identity.Actor, in CreateInput) (*Class, error) {
	if !actor.Role.CanManageClasses() {
		return nil, apperr.New(apperr.Forbidden, "Teacher access required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.New(apperr.Validation, "Class name is required")
	}
	code := NormalizeCode(in.Code)
	if !ValidCode(code) {
		return nil, apperr.New(apperr.Validation, "Class code must be 2-20 letters, digits or dashes")
	}

	c := &Class{
		Name:       name,
		Code:       code,
		TeacherID:  actor.ID,
		Department: strings.TrimSpace(in.Department),
		Schedule: Schedule{
			Day:  strings.TrimSpace(in.Schedule.Day),
			Time: strings.TrimSpace(in.Schedule.Time),
		},
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return nil, apperr.New(apperr.Conflict, "Class code already exists")
		}
		return nil, err
	}
	s.logger.Info("class created",
		zap.String("class_id", c.ID),
		zap.String("code", c.Code),
		zap.String("teacher_id", c.TeacherID),
	)
	return c, nil
}

// Get returns a class by id.
func (s *Service) Get(ctx context.Context, id string) (*Class, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.NotFound, "Class not found")
	}
	return c, nil
}

// Detail returns a class and its roster, visible to the owner, an admin or
// an enrolled student.
func (s *Service) Detail(ctx context.Context, actor identity.Actor, id string) (*Class, []Member, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !c.ViewableBy(actor) && !c.HasStudent(actor.ID) {
		return nil, nil, apperr.New(apperr.Forbidden, "Access denied")
	}
	members, err := s.repo.Members(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, members, nil
}

// ListForUser returns owned classes for managers and enrolled classes for students.
func (s *Service) ListForUser(ctx context.Context, actor identity.Actor) ([]Class, error) {
	if actor.Role.CanManageClasses() {
		return s.repo.ListByTeacher(ctx, actor.ID)
	}
	return s.repo.ListByStudent(ctx, actor.ID)
}

// Join enrolls a student using the class join code.
func (s *Service) Join(ctx context.Context, actor identity.Actor, code string) (*Class, error) {
	if actor.Role != identity.RoleStudent {
		return nil, apperr.New(apperr.Forbidden, "Only students can join classes")
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.New(apperr.Validation, "Class code is required")
	}
	c, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.NotFound, "Class not found")
	}
	if err := s.enroll(ctx, c, actor.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// AddStudentByEmail lets the owning teacher enroll a registered student.
func (s *Service) AddStudentByEmail(ctx context.Context, actor identity.Actor, classID, email string) (*Class, *identity.User, error) {
	c, err := s.Get(ctx, classID)
	if err != nil {
		return nil, nil, err
	}
	if !c.OwnedBy(actor) {
		return nil, nil, apperr.New(apperr.Forbidden, "Access denied")
	}
	if strings.TrimSpace(email) == "" {
		return nil, nil, apperr.New(apperr.Validation, "Student email is required")
	}
	student, err := s.students.StudentByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if err := s.enroll(ctx, c, student.ID); err != nil {
		return nil, nil, err
	}
	return c, student, nil
}

func (s *Service) enroll(ctx context.Context, c *Class, studentID string) error {
	if c.HasStudent(studentID) {
		return apperr.New(apperr.Conflict, "Already enrolled in this class")
	}
	if err := s.repo.AddStudent(ctx, c.ID, studentID); err != nil {
		if errors.Is(err, ErrAlreadyEnrolled) {
			return apperr.New(apperr.Conflict, "Already enrolled in this class")
		}
		return err
	}
	c.StudentIDs = append(c.StudentIDs, studentID)
	s.logger.Info("student enrolled",
		zap.String("class_id", c.ID),
		zap.String("student_id", studentID),
	)
	return nil
}

// Delete removes a class and everything it owns. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, actor identity.Actor, classID string) error {
	c, err := s.Get(ctx, classID)
	if err != nil {
		return err
	}
	if !c.OwnedBy(actor) {
		return apperr.New(apperr.Forbidden, "Access denied")
	}
	deleted, err := s.repo.Delete(ctx, c.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.New(apperr.NotFound, "Class not found")
	}
	s.logger.Info("class deleted", zap.String("class_id", c.ID))
	return nil
}
