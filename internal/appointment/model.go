package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-availability/internal/schedule"
)

type Business struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	Schedule  schedule.WeeklySchedule
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BusinessService is a bookable offering of a business with a fixed duration.
type BusinessService struct {
	ID              uuid.UUID
	BusinessID      uuid.UUID
	Name            string
	DurationMinutes int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	ClientID   uuid.UUID
	Date       time.Time // midnight UTC of the calendar date
	StartTime  schedule.Clock
	EndTime    schedule.Clock
	Status     Status
	Notes      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Interval is the half-open time range the appointment covers on its date.
func (a Appointment) Interval() schedule.Interval {
	return schedule.Interval{Start: a.StartTime, End: a.EndTime}
}

// NewAppointment holds the values for a pending appointment about to be inserted.
type NewAppointment struct {
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	ClientID   uuid.UUID
	Date       time.Time
	StartTime  schedule.Clock
	EndTime    schedule.Clock
	Notes      *string
}

// Slot is the date and time range an existing appointment is moved to.
type Slot struct {
	Date      time.Time
	StartTime schedule.Clock
	EndTime   schedule.Clock
	Notes     *string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID uuid.UUID
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page selects a window of a listing. Zero values mean the first DefaultPageLimit rows.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) clamp() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
