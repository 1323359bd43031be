package classes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"qrattend/internal/store"
)

var (
	// ErrCodeTaken is returned when the join code is already in use.
	ErrCodeTaken = errors.New("class code already exists")
	// ErrAlreadyEnrolled is returned when the student is already on the roster.
	ErrAlreadyEnrolled = errors.New("student already enrolled")
)

// Repository persists classes and rosters.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

const classColumns = `id, name, code, teacher_id, department, schedule_day, schedule_time, created_at`

// Create inserts a class, assigning id and creation time.
func (r *Repository) Create(ctx context.Context, c *Class) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if c.StudentIDs == nil {
		c.StudentIDs = []string{}
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO classes (id, name, code, teacher_id, department, schedule_day, schedule_time, created_at)
		VALUES (:id, :name, :code, :teacher_id, :department, :schedule_day, :schedule_time, :created_at)
	`, rowFromClass(c))
	if store.IsUniqueViolation(err) {
		return ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Get returns a class with its roster, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Class, error) {
	return r.getOne(ctx, `SELECT `+classColumns+` FROM classes WHERE id = ?`, id)
}

// GetByCode returns a class by join code, or nil when absent.
func (r *Repository) GetByCode(ctx context.Context, code string) (*Class, error) {
	return r.getOne(ctx, `SELECT `+classColumns+` FROM classes WHERE code = ?`, code)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*Class, error) {
	var row classRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	list, err := r.withRosters(ctx, []classRow{row})
	if err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListByTeacher returns classes owned by teacherID, newest first.
func (r *Repository) ListByTeacher(ctx context.Context, teacherID string) ([]Class, error) {
	var rows []classRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+classColumns+` FROM classes WHERE teacher_id = ? ORDER BY created_at DESC
	`), teacherID)
	if err != nil {
		return nil, fmt.Errorf("list classes by teacher: %w", err)
	}
	return r.withRosters(ctx, rows)
}

// ListByStudent returns classes studentID is enrolled in, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]Class, error) {
	var rows []classRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT c.id, c.name, c.code, c.teacher_id, c.department, c.schedule_day, c.schedule_time, c.created_at
		FROM classes c
		JOIN class_students cs ON cs.class_id = c.id
		WHERE cs.student_id = ?
		ORDER BY c.created_at DESC
	`), studentID)
	if err != nil {
		return nil, fmt.Errorf("list classes by student: %w", err)
	}
	return r.withRosters(ctx, rows)
}

func (r *Repository) withRosters(ctx context.Context, rows []classRow) ([]Class, error) {
	out := make([]Class, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		out = append(out, row.toClass())
		ids = append(ids, row.ID)
		index[row.ID] = i
	}

	query, args, err := sqlx.In(`
		SELECT class_id, student_id FROM class_students
		WHERE class_id IN (?)
		ORDER BY joined_at
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("build roster query: %w", err)
	}
	var pairs []struct {
		ClassID   string `db:"class_id"`
		StudentID string `db:"student_id"`
	}
	if err := r.db.SelectContext(ctx, &pairs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load rosters: %w", err)
	}
	for _, p := range pairs {
		c := &out[index[p.ClassID]]
		c.StudentIDs = append(c.StudentIDs, p.StudentID)
	}
	return out, nil
}

// AddStudent puts studentID on the roster. The roster primary key makes a
// second insert for the same pair fail with ErrAlreadyEnrolled.
func (r *Repository) AddStudent(ctx context.Context, classID, studentID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO class_students (class_id, student_id, joined_at) VALUES (?, ?, ?)
	`), classID, studentID, time.Now().UTC())
	if store.IsUniqueViolation(err) {
		return ErrAlreadyEnrolled
	}
	if err != nil {
		return fmt.Errorf("add student: %w", err)
	}
	return nil
}

// Members returns the roster joined with student profiles, ordered by name.
func (r *Repository) Members(ctx context.Context, classID string) ([]Member, error) {
	members := []Member{}
	err := r.db.SelectContext(ctx, &members, r.db.Rebind(`
		SELECT u.id, u.name, u.email, u.student_number, cs.joined_at
		FROM class_students cs
		JOIN users u ON u.id = cs.student_id
		WHERE cs.class_id = ?
		ORDER BY u.name
	`), classID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Delete removes a class together with its attendance, sessions and roster.
// It reports whether the class existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM attendance WHERE class_id = ?`,
			`DELETE FROM qr_sessions WHERE class_id = ?`,
			`DELETE FROM class_students WHERE class_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), id); err != nil {
				return fmt.Errorf("cascade delete: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM classes WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete class: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete class: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}
