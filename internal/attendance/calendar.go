package attendance

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Calendar maps instants to attendance days in one fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar for loc; nil means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// DayStart returns local midnight of the day containing t, as a UTC instant.
func (c Calendar) DayStart(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc).UTC()
}

// Day returns the window covering the local day containing t.
func (c Calendar) Day(t time.Time) Window {
	start := c.DayStart(t).In(c.loc)
	return Window{Start: start.UTC(), End: start.AddDate(0, 0, 1).UTC()}
}

// ParseDay parses a YYYY-MM-DD date in the calendar's location.
func (c Calendar) ParseDay(s string) (Window, error) {
	t, err := time.ParseInLocation(dayLayout, s, c.loc)
	if err != nil {
		return Window{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return c.Day(t), nil
}
