package identity

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// CanManageClasses reports whether the role may create classes, issue QR
// sessions and read class attendance.
func (r Role) CanManageClasses() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// User is a registered account.
type User struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	Role          Role      `db:"role" json:"role"`
	StudentNumber *string   `db:"student_number" json:"studentId,omitempty"`
	Department    string    `db:"department" json:"department,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}
