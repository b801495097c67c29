// Package availability computes which start times of a business day can be booked.
package availability

import (
	"time"

	"github.com/hackgods/booking-availability/internal/schedule"
)

const (
	// SlotStep is the fixed grid between candidate start times, in minutes.
	SlotStep = 30
	// DefaultServiceMinutes is used when no service is given.
	DefaultServiceMinutes = 30
)

const (
	ReasonInsufficientTime = "insufficient time before closing"
	ReasonBooked           = "slot already booked"
)

// TimeSlot is one candidate start time on the grid.
type TimeSlot struct {
	Time      schedule.Clock `json:"time"`
	Available bool           `json:"available"`
	Reason    string         `json:"reason,omitempty"`
}

// DayAvailability is the bookable view of one calendar date.
type DayAvailability struct {
	Date      time.Time  `json:"-"`
	Available bool       `json:"available"`
	TimeSlots []TimeSlot `json:"timeSlots"`
}

// Compute walks the open hours of date's weekday in SlotStep increments and marks each
// start time as bookable or not for a service lasting serviceMinutes.
//
// A slot is unavailable when the service would end after closing, or when
// [t, t+serviceMinutes) overlaps any occupied interval. Slots are independent of each other.
// A non-positive serviceMinutes falls back to DefaultServiceMinutes.
func Compute(week schedule.WeeklySchedule, date time.Time, serviceMinutes int, occupied []schedule.Interval) DayAvailability {
	if serviceMinutes <= 0 {
		serviceMinutes = DefaultServiceMinutes
	}

	day, open := week.Day(date.Weekday())
	if !open {
		return DayAvailability{Date: date, Available: false, TimeSlots: []TimeSlot{}}
	}

	slots := make([]TimeSlot, 0, slotCount(day.Window()))
	for t := day.Open; t < day.Close; t = t.Add(SlotStep) {
		candidate := schedule.Span(t, serviceMinutes)

		switch {
		case candidate.End > day.Close:
			slots = append(slots, TimeSlot{Time: t, Reason: ReasonInsufficientTime})
		case candidate.OverlapsAny(occupied):
			slots = append(slots, TimeSlot{Time: t, Reason: ReasonBooked})
		default:
			slots = append(slots, TimeSlot{Time: t, Available: true})
		}
	}

	return DayAvailability{Date: date, Available: true, TimeSlots: slots}
}

// Days computes availability for every date in [from, to], inclusive.
// occupiedFor is asked for the occupied intervals of each open date only.
func Days(week schedule.WeeklySchedule, from, to time.Time, serviceMinutes int, occupiedFor func(date time.Time) ([]schedule.Interval, error)) ([]DayAvailability, error) {
	var out []DayAvailability
	for d := schedule.DateOf(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		var occupied []schedule.Interval
		if _, open := week.Day(d.Weekday()); open && occupiedFor != nil {
			var err error
			if occupied, err = occupiedFor(d); err != nil {
				return nil, err
			}
		}
		out = append(out, Compute(week, d, serviceMinutes, occupied))
	}
	return out, nil
}

// slotCount is ceil(window / SlotStep).
func slotCount(window schedule.Interval) int {
	m := window.Minutes()
	if m <= 0 {
		return 0
	}
	return (m + SlotStep - 1) / SlotStep
}
