package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the exclusive upper bound of a time of day.
const MinutesPerDay = 24 * 60

var ErrInvalidClock = errors.New("time must be HH:MM")

// Clock is a time of day expressed in minutes since midnight.
// Values up to MinutesPerDay are valid so a close time of "24:00" can be expressed.
type Clock int

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM" (seconds, when present as "HH:MM:SS", must be zero).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec != 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}

	c := NewClock(h, m)
	if c > MinutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return c, nil
}

// Add returns the clock shifted by the given number of minutes.
// The result may exceed MinutesPerDay; callers decide whether that is acceptable.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

func (c Clock) Minutes() int {
	return int(c)
}

// Valid reports whether c is inside a single day, 24:00 included.
func (c Clock) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
