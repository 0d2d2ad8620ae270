package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidClock = errors.New("invalid time of day")

// Clock is a time of day in minutes after midnight.
type Clock int

const (
	minutesPerDay = 24 * 60

	DefaultIntervalMinutes = 30
	BusinessOpen           = Clock(8*60 + 30)
	BusinessClose          = Clock(15 * 60)
	FirstSlot              = BusinessOpen
	LastSlot               = Clock(14 * 60)
)

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" or "HH:MM:SS". Seconds are dropped.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	return NewClock(h, m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// String renders "HH:MM:00", the format stored on appointments.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:00", c.Hour(), c.Minute())
}

// Short renders "HH:MM".
func (c Clock) Short() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// AddMinutes wraps around midnight.
func (c Clock) AddMinutes(minutes int) Clock {
	v := (int(c) + minutes) % minutesPerDay
	if v < 0 {
		v += minutesPerDay
	}
	return Clock(v)
}

// Overlaps reports whether [aStart, aStart+aMinutes) and
// [bStart, bStart+bMinutes) intersect.
func Overlaps(aStart Clock, aMinutes int, bStart Clock, bMinutes int) bool {
	aEnd := int(aStart) + aMinutes
	bEnd := int(bStart) + bMinutes
	return int(aStart) < bEnd && int(bStart) < aEnd
}
