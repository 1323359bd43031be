package attendance

import (
	"context"
	"math"

	"qrattend/internal/apperr"
	"qrattend/internal/classes"
	"qrattend/internal/identity"
)

// RosterSource supplies a class and its enrolled students.
type RosterSource interface {
	Get(ctx context.Context, id string) (*classes.Class, error)
	Members(ctx context.Context, classID string) ([]classes.Member, error)
}

// StudentStats is one roster line of the class statistics. Percentage is nil
// while the class has no recorded day.
type StudentStats struct {
	Student      classes.Member `json:"student"`
	TotalClasses int            `json:"totalClasses"`
	Recorded     int            `json:"recorded"`
	Present      int            `json:"present"`
	Percentage   *float64       `json:"percentage"`
}

// Summary is the class-wide aggregate. AverageAttendance is nil when the
// class has no students or no recorded day.
type Summary struct {
	TotalStudents     int      `json:"totalStudents"`
	TotalDays         int      `json:"totalDays"`
	PresentCount      int      `json:"presentCount"`
	Records           int      `json:"records"`
	AverageAttendance *float64 `json:"averageAttendance"`
}

// Reports exposes read-only projections of the ledger.
type Reports struct {
	repo     *Repository
	classes  RosterSource
	calendar Calendar
}

// NewReports creates a report reader.
func NewReports(repo *Repository, classes RosterSource, calendar Calendar) *Reports {
	return &Reports{repo: repo, classes: classes, calendar: calendar}
}

func (r *Reports) viewable(ctx context.Context, actor identity.Actor, classID string) (*classes.Class, error) {
	c, err := r.classes.Get(ctx, classID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.New(apperr.NotFound, "Class not found")
	}
	if !c.ViewableBy(actor) {
		return nil, apperr.New(apperr.Forbidden, "Access denied")
	}
	return c, nil
}

// ClassRecords lists a class's records. date, when set, is YYYY-MM-DD.
func (r *Reports) ClassRecords(ctx context.Context, actor identity.Actor, classID, date string) ([]ClassEntry, error) {
	c, err := r.viewable(ctx, actor, classID)
	if err != nil {
		return nil, err
	}
	var day *Window
	if date != "" {
		w, err := r.calendar.ParseDay(date)
		if err != nil {
			return nil, apperr.New(apperr.Validation, "date must be formatted YYYY-MM-DD")
		}
		day = &w
	}
	return r.repo.ListByClass(ctx, c.ID, day)
}

// StudentRecords lists the caller's own records, optionally for one class.
func (r *Reports) StudentRecords(ctx context.Context, actor identity.Actor, classID string) ([]StudentEntry, error) {
	return r.repo.ListByStudent(ctx, actor.ID, classID)
}

// Stats computes per-student attendance for every enrolled student. Each
// student is measured against the days on which the class took attendance.
func (r *Reports) Stats(ctx context.Context, actor identity.Actor, classID string) ([]StudentStats, error) {
	c, err := r.viewable(ctx, actor, classID)
	if err != nil {
		return nil, err
	}
	members, err := r.classes.Members(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	counts, err := r.repo.studentCounts(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	totals, err := r.repo.totals(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	out := make([]StudentStats, 0, len(members))
	for _, m := range members {
		cnt := counts[m.ID]
		out = append(out, StudentStats{
			Student:      m,
			TotalClasses: totals.Days,
			Recorded:     cnt.Recorded,
			Present:      cnt.Present,
			Percentage:   percent(cnt.Present, totals.Days),
		})
	}
	return out, nil
}

// Summary computes the class-wide average attendance.
func (r *Reports) Summary(ctx context.Context, actor identity.Actor, classID string) (*Summary, error) {
	c, err := r.viewable(ctx, actor, classID)
	if err != nil {
		return nil, err
	}
	totals, err := r.repo.totals(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	students := len(c.StudentIDs)
	return &Summary{
		TotalStudents:     students,
		TotalDays:         totals.Days,
		PresentCount:      totals.Present,
		Records:           totals.Records,
		AverageAttendance: percent(totals.Present, students*totals.Days),
	}, nil
}

// percent returns part/whole as a percentage rounded to two decimals, or nil
// when whole is zero.
func percent(part, whole int) *float64 {
	if whole <= 0 {
		return nil
	}
	v := math.Round(float64(part)/float64(whole)*10000) / 100
	return &v
}
