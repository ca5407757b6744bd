// Package time_window computes calendar boundaries (start of day, ISO week and month) in a given zone.
package time_window

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// LoadLocation resolves an IANA zone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek returns local midnight of the ISO week's Monday.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

// LocalMidnight parses a bare date as midnight in loc.
func LocalMidnight(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// Window anchors boundary calculations to one instant and zone.
type Window struct {
	Now      time.Time
	Location *time.Location
}

func New(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	return Window{Now: now, Location: loc}
}

func (w Window) Today() time.Time {
	return StartOfDay(w.Now, w.Location)
}

func (w Window) ThisWeek() time.Time {
	return StartOfWeek(w.Now, w.Location)
}

func (w Window) ThisMonth() time.Time {
	return StartOfMonth(w.Now, w.Location)
}

// MonthsBack returns the start of the month n months before the current one.
func (w Window) MonthsBack(n int) time.Time {
	return w.ThisMonth().AddDate(0, -n, 0)
}
