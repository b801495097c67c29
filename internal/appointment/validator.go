package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-availability/internal/schedule"
)

// ValidateNoConflict checks candidate against the appointments of businessID on date.
// Appointments of other businesses or dates, the one identified by exclude, and those whose
// status does not occupy time are ignored. Touching intervals are not a conflict.
func ValidateNoConflict(businessID uuid.UUID, date time.Time, candidate schedule.Interval, existing []Appointment, exclude uuid.UUID) error {
	day := schedule.DateOf(date)
	for _, a := range existing {
		if a.ID == exclude || a.BusinessID != businessID || !a.Status.Occupies() {
			continue
		}
		if !schedule.DateOf(a.Date).Equal(day) {
			continue
		}
		if candidate.Overlaps(a.Interval()) {
			return fmt.Errorf("%w: %s overlaps %s", ErrBookingConflict, candidate, a.Interval())
		}
	}
	return nil
}

// Occupied returns the intervals of the appointments that block time.
func Occupied(appts []Appointment) []schedule.Interval {
	out := make([]schedule.Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status.Occupies() {
			out = append(out, a.Interval())
		}
	}
	return out
}
