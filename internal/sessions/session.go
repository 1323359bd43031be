package sessions

import "time"

// Session is a time-boxed QR attendance window for one class.
type Session struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"classId"`
	TeacherID string    `db:"teacher_id" json:"teacherId"`
	Code      string    `db:"session_code" json:"sessionCode"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	Active    bool      `db:"active" json:"active"`
}

// Expired reports whether the window has closed at now. A session expiring
// exactly at now is expired.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Redeemable reports whether the session still accepts check-ins.
func (s *Session) Redeemable(now time.Time) bool {
	return s.Active && !s.Expired(now)
}
