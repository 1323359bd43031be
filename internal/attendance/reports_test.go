package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/apperr"
	"qrattend/internal/identity"
)

func TestStatsTwoStudentsOneDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reports := NewReports(f.repo, f.classes, NewCalendar(time.UTC))

	stats, err := reports.Stats(ctx, f.teacher, f.class.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	for _, st := range stats {
		assert.Nil(t, st.Percentage, "no recorded day yet")
	}

	s := f.open(t, t0)
	f.clock = t0.Add(time.Minute)
	_, err = f.svc.Mark(ctx, f.alice, Locator{SessionCode: s.Code})
	require.NoError(t, err)

	stats, err = reports.Stats(ctx, f.teacher, f.class.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	byName := map[string]StudentStats{}
	for _, st := range stats {
		byName[st.Student.Name] = st
	}

	alice := byName["Alice"]
	require.NotNil(t, alice.Percentage)
	assert.Equal(t, 100.0, *alice.Percentage)
	assert.Equal(t, 1, alice.Present)
	assert.Equal(t, 1, alice.TotalClasses)

	bob := byName["Bob"]
	require.NotNil(t, bob.Percentage)
	assert.Equal(t, 0.0, *bob.Percentage)
	assert.Equal(t, 0, bob.Recorded)

	sum, err := reports.Summary(ctx, f.teacher, f.class.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalStudents)
	assert.Equal(t, 1, sum.TotalDays)
	assert.Equal(t, 1, sum.PresentCount)
	require.NotNil(t, sum.AverageAttendance)
	assert.Equal(t, 50.0, *sum.AverageAttendance)
}

func TestSummaryWithoutData(t *testing.T) {
	f := newFixture(t)
	reports := NewReports(f.repo, f.classes, NewCalendar(time.UTC))

	sum, err := reports.Summary(context.Background(), f.teacher, f.class.ID)
	require.NoError(t, err)
	assert.Nil(t, sum.AverageAttendance)
	assert.Zero(t, sum.Records)
}

func TestReportsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reports := NewReports(f.repo, f.classes, NewCalendar(time.UTC))

	_, err := reports.Stats(ctx, f.alice, f.class.ID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	admin := identity.Actor{ID: "root", Role: identity.RoleAdmin}
	_, err = reports.Summary(ctx, admin, f.class.ID)
	assert.NoError(t, err)

	_, err = reports.ClassRecords(ctx, f.teacher, "missing", "")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = reports.ClassRecords(ctx, f.teacher, f.class.ID, "04/03/2024")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestRecordListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reports := NewReports(f.repo, f.classes, NewCalendar(time.UTC))

	for i, who := range []identity.Actor{f.alice, f.bob} {
		day := t0.Add(time.Duration(i) * 24 * time.Hour)
		s := f.open(t, day)
		f.clock = day.Add(time.Minute)
		_, err := f.svc.Mark(ctx, who, Locator{SessionCode: s.Code})
		require.NoError(t, err)
	}

	all, err := reports.ClassRecords(ctx, f.teacher, f.class.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Bob", all[0].StudentName, "newest day first")

	firstDay, err := reports.ClassRecords(ctx, f.teacher, f.class.ID, "2024-03-04")
	require.NoError(t, err)
	require.Len(t, firstDay, 1)
	assert.Equal(t, "Alice", firstDay[0].StudentName)

	mine, err := reports.StudentRecords(ctx, f.alice, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "CS201", mine[0].ClassCode)

	none, err := reports.StudentRecords(ctx, f.alice, "other-class")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPercent(t *testing.T) {
	assert.Nil(t, percent(1, 0))
	v := percent(1, 3)
	require.NotNil(t, v)
	assert.Equal(t, 33.33, *v)
}
