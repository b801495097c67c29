package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownWeekday  = errors.New("unknown weekday")
	ErrInvalidDayHours = errors.New("open time must be before close time")
)

// weekdayNames is indexed by time.Weekday (Sunday == 0).
var weekdayNames = [...]string{
	"sunday",
	"monday",
	"tuesday",
	"wednesday",
	"thursday",
	"friday",
	"saturday",
}

// WeekdayName returns the lower-case key used in a WeeklySchedule.
func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}

// ParseWeekday accepts a weekday name in any case.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, w := range weekdayNames {
		if w == n {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, name)
}

// DaySchedule holds the operating hours of one weekday.
type DaySchedule struct {
	Open   Clock `json:"open"`
	Close  Clock `json:"close"`
	Closed bool  `json:"closed"`
}

// Window returns the open hours as a half-open interval.
func (d DaySchedule) Window() Interval {
	return Interval{Start: d.Open, End: d.Close}
}

func (d DaySchedule) Validate() error {
	if d.Closed {
		return nil
	}
	if !d.Open.Valid() || !d.Close.Valid() || d.Open >= d.Close {
		return fmt.Errorf("%w: %s-%s", ErrInvalidDayHours, d.Open, d.Close)
	}
	return nil
}

// UnmarshalJSON tolerates empty or missing hours on closed days, which is how
// closed days are usually stored.
func (d *DaySchedule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Open   string `json:"open"`
		Close  string `json:"close"`
		Closed bool   `json:"closed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Closed = raw.Closed
	open, openErr := ParseClock(raw.Open)
	closing, closeErr := ParseClock(raw.Close)
	if raw.Closed {
		if openErr == nil && closeErr == nil {
			d.Open, d.Close = open, closing
		}
		return nil
	}
	if openErr != nil {
		return fmt.Errorf("open: %w", openErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close: %w", closeErr)
	}
	d.Open, d.Close = open, closing
	return nil
}

// WeeklySchedule maps weekday names ("monday" ... "sunday") to operating hours.
// A missing day is closed.
type WeeklySchedule map[string]DaySchedule

// Day returns the hours for the weekday and whether the business is open that day.
// A day without a valid open < close window counts as closed.
func (w WeeklySchedule) Day(day time.Weekday) (DaySchedule, bool) {
	d, ok := w[WeekdayName(day)]
	if !ok || d.Closed || d.Validate() != nil {
		return DaySchedule{}, false
	}
	return d, true
}

// Validate checks day keys and that every open day has open < close.
func (w WeeklySchedule) Validate() error {
	for name, d := range w {
		if _, err := ParseWeekday(name); err != nil {
			return err
		}
		if name != strings.ToLower(name) {
			return fmt.Errorf("%w: %q must be lower case", ErrUnknownWeekday, name)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
