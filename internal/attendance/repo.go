package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/store"
)

// ErrDuplicateEntry is returned when a record already exists for the
// (class, student, day) triple.
var ErrDuplicateEntry = errors.New("attendance already recorded for this day")

// Status of an attendance record.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Record is one committed attendance entry.
type Record struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"classId"`
	StudentID string    `db:"student_id" json:"studentId"`
	Day       time.Time `db:"day" json:"date"`
	Status    Status    `db:"status" json:"status"`
	MarkedAt  time.Time `db:"marked_at" json:"markedAt"`
	SessionID *string   `db:"qr_session_id" json:"qrSessionId,omitempty"`
}

// ClassEntry is a record joined with the student's profile.
type ClassEntry struct {
	Record
	StudentName   string  `db:"student_name" json:"studentName"`
	StudentEmail  string  `db:"student_email" json:"studentEmail"`
	StudentNumber *string `db:"student_number" json:"studentNumber,omitempty"`
}

// StudentEntry is a record joined with its class.
type StudentEntry struct {
	Record
	ClassName string `db:"class_name" json:"className"`
	ClassCode string `db:"class_code" json:"classCode"`
}

type studentCount struct {
	StudentID string `db:"student_id"`
	Recorded  int    `db:"recorded"`
	Present   int    `db:"present"`
}

type classTotals struct {
	Days    int `db:"days"`
	Present int `db:"present"`
	Records int `db:"records"`
}

// Repository persists attendance records.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `a.id, a.class_id, a.student_id, a.day, a.status, a.marked_at, a.qr_session_id`

// HasEntry reports whether the student has a record for the class within w.
func (r *Repository) HasEntry(ctx context.Context, classID, studentID string, w Window) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`
		SELECT COUNT(*) FROM attendance
		WHERE class_id = ? AND student_id = ? AND day >= ? AND day < ?
	`), classID, studentID, w.Start, w.End)
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return n > 0, nil
}

// Create inserts a record. A second record for the same class, student and
// day fails with ErrDuplicateEntry.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPresent
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO attendance (id, class_id, student_id, day, status, marked_at, qr_session_id)
		VALUES (:id, :class_id, :student_id, :day, :status, :marked_at, :qr_session_id)
	`, rec)
	if store.IsUniqueViolation(err) {
		return ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// ListByClass returns the class's records, newest day first, optionally
// restricted to one day.
func (r *Repository) ListByClass(ctx context.Context, classID string, day *Window) ([]ClassEntry, error) {
	query := `
		SELECT ` + recordColumns + `, u.name AS student_name, u.email AS student_email, u.student_number
		FROM attendance a
		JOIN users u ON u.id = a.student_id
		WHERE a.class_id = ?`
	args := []any{classID}
	if day != nil {
		query += ` AND a.day >= ? AND a.day < ?`
		args = append(args, day.Start, day.End)
	}
	query += ` ORDER BY a.day DESC, a.marked_at DESC`

	entries := []ClassEntry{}
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list class attendance: %w", err)
	}
	return entries, nil
}

// ListByStudent returns the student's records, newest day first, optionally
// restricted to one class.
func (r *Repository) ListByStudent(ctx context.Context, studentID, classID string) ([]StudentEntry, error) {
	query := `
		SELECT ` + recordColumns + `, c.name AS class_name, c.code AS class_code
		FROM attendance a
		JOIN classes c ON c.id = a.class_id
		WHERE a.student_id = ?`
	args := []any{studentID}
	if classID != "" {
		query += ` AND a.class_id = ?`
		args = append(args, classID)
	}
	query += ` ORDER BY a.day DESC, a.marked_at DESC`

	entries := []StudentEntry{}
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return entries, nil
}

func (r *Repository) studentCounts(ctx context.Context, classID string) (map[string]studentCount, error) {
	var rows []studentCount
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT student_id,
			COUNT(*) AS recorded,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS present
		FROM attendance
		WHERE class_id = ?
		GROUP BY student_id
	`), string(StatusPresent), classID)
	if err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}
	out := make(map[string]studentCount, len(rows))
	for _, row := range rows {
		out[row.StudentID] = row
	}
	return out, nil
}

func (r *Repository) totals(ctx context.Context, classID string) (classTotals, error) {
	var t classTotals
	err := r.db.GetContext(ctx, &t, r.db.Rebind(`
		SELECT COUNT(DISTINCT day) AS days,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS present,
			COUNT(*) AS records
		FROM attendance
		WHERE class_id = ?
	`), string(StatusPresent), classID)
	if err != nil {
		return classTotals{}, fmt.Errorf("attendance totals: %w", err)
	}
	return t, nil
}
