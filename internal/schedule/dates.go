package schedule

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	DateLayout         = "2006-01-02"
	DefaultHorizonDays = 56
)

var (
	ErrClosedDay   = errors.New("salon is closed on this day")
	ErrPastDate    = errors.New("date is in the past")
	ErrDateTooFar  = errors.New("date is beyond the booking horizon")
	ErrInvalidDate = errors.New("invalid date")
)

var DefaultOpenDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday}

// DateFilter decides which calendar dates can be booked.
type DateFilter struct {
	OpenDays    []time.Weekday
	HorizonDays int
	// Location defines "today". Nil means the location of now.
	Location *time.Location
}

func NewDateFilter(openDays []time.Weekday, horizonDays int, loc *time.Location) DateFilter {
	if len(openDays) == 0 {
		openDays = DefaultOpenDays
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return DateFilter{OpenDays: openDays, HorizonDays: horizonDays, Location: loc}
}

// Check returns nil when date can be booked at moment now. Only the calendar
// date of date is considered.
func (f DateFilter) Check(date, now time.Time) error {
	d := civil(date)
	today := civil(f.localNow(now))

	horizon := f.HorizonDays
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}
	openDays := f.OpenDays
	if len(openDays) == 0 {
		openDays = DefaultOpenDays
	}

	switch {
	case d.Before(today):
		return ErrPastDate
	case d.After(today.AddDate(0, 0, horizon)):
		return ErrDateTooFar
	case !slices.Contains(openDays, d.Weekday()):
		return ErrClosedDay
	}
	return nil
}

func (f DateFilter) IsAvailable(date, now time.Time) bool {
	return f.Check(date, now) == nil
}

// Today returns the current calendar date in the filter's location.
func (f DateFilter) Today(now time.Time) time.Time {
	return civil(f.localNow(now))
}

func (f DateFilter) localNow(now time.Time) time.Time {
	if f.Location != nil {
		return now.In(f.Location)
	}
	return now
}

// Day is one cell of a month calendar.
type Day struct {
	Date      string       `json:"date"`
	Weekday   time.Weekday `json:"weekday"`
	Available bool         `json:"available"`
	Reason    string       `json:"reason,omitempty"`
}

// MonthDays lists every day of the month with its availability.
func (f DateFilter) MonthDays(year int, month time.Month, now time.Time) []Day {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := make([]Day, 0, 31)
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		day := Day{Date: d.Format(DateLayout), Weekday: d.Weekday(), Available: true}
		if err := f.Check(d, now); err != nil {
			day.Available = false
			day.Reason = err.Error()
		}
		days = append(days, day)
	}
	return days
}

// ParseDate parses a YYYY-MM-DD booking date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseMonth parses a YYYY-MM month.
func ParseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month %q", ErrInvalidDate, s)
	}
	return t.Year(), t.Month(), nil
}

// At combines a booking date and a clock time in loc.
func At(date time.Time, c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

// HoursUntil returns the hours from now until the appointment start.
// Negative once the start has passed.
func HoursUntil(date time.Time, c Clock, now time.Time, loc *time.Location) float64 {
	return At(date, c, loc).Sub(now).Hours()
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
