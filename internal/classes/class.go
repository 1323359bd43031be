package classes

import (
	"regexp"
	"strings"
	"time"

	"qrattend/internal/identity"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9-]{2,20}$`)

// NormalizeCode trims and uppercases a join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a normalized code is well formed.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Schedule is free-form meeting metadata.
type Schedule struct {
	Day  string `json:"day,omitempty"`
	Time string `json:"time,omitempty"`
}

// Class is a teacher-owned course with a roster of student ids.
type Class struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	TeacherID  string    `json:"teacherId"`
	Department string    `json:"department,omitempty"`
	Schedule   Schedule  `json:"schedule"`
	StudentIDs []string  `json:"studentIds"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasStudent reports whether studentID is on the roster.
func (c *Class) HasStudent(studentID string) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// OwnedBy reports whether actor is the owning teacher.
func (c *Class) OwnedBy(actor identity.Actor) bool {
	return c.TeacherID == actor.ID
}

// ViewableBy reports whether actor may read the class's attendance data.
func (c *Class) ViewableBy(actor identity.Actor) bool {
	return c.OwnedBy(actor) || actor.Role == identity.RoleAdmin
}

// Member is a roster entry joined with the student's profile.
type Member struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	StudentNumber *string   `db:"student_number" json:"studentId,omitempty"`
	JoinedAt      time.Time `db:"joined_at" json:"joinedAt"`
}

type classRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Code         string    `db:"code"`
	TeacherID    string    `db:"teacher_id"`
	Department   string    `db:"department"`
	ScheduleDay  string    `db:"schedule_day"`
	ScheduleTime string    `db:"schedule_time"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r classRow) toClass() Class {
	return Class{
		ID:         r.ID,
		Name:       r.Name,
		Code:       r.Code,
		TeacherID:  r.TeacherID,
		Department: r.Department,
		Schedule:   Schedule{Day: r.ScheduleDay, Time: r.ScheduleTime},
		StudentIDs: []string{},
		CreatedAt:  r.CreatedAt,
	}
}

func rowFromClass(c *Class) classRow {
	return classRow{
		ID:           c.ID,
		Name:         c.Name,
		Code:         c.Code,
		TeacherID:    c.TeacherID,
		Department:   c.Department,
		ScheduleDay:  c.Schedule.Day,
		ScheduleTime: c.Schedule.Time,
		CreatedAt:    c.CreatedAt,
	}
}
