package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarDay(t *testing.T) {
	utc := NewCalendar(nil)
	w := utc.Day(time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), w.End)

	tokyo := NewCalendar(time.FixedZone("JST", 9*60*60))
	start := tokyo.DayStart(time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), start)

	w = tokyo.Day(time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC))
	assert.Equal(t, start, w.Start)
	assert.Equal(t, start.Add(24*time.Hour), w.End)
}

func TestCalendarDSTDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	w := NewCalendar(ny).Day(time.Date(2024, 3, 10, 12, 0, 0, 0, ny))
	assert.Equal(t, 23*time.Hour, w.End.Sub(w.Start))
}

func TestParseDay(t *testing.T) {
	c := NewCalendar(time.UTC)
	w, err := c.ParseDay("2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), w.Start)

	_, err = c.ParseDay("yesterday")
	assert.Error(t, err)
}
