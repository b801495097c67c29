package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBusinessNotFound    = fmt.Errorf("business %w", ErrNotFound)
	ErrServiceNotFound     = fmt.Errorf("service %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	// ErrConcurrentUpdate is returned when an appointment changed between being read
	// and being written back.
	ErrConcurrentUpdate = fmt.Errorf("%w: appointment changed concurrently", ErrBookingConflict)
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	GetBusinessByID(ctx context.Context, id uuid.UUID) (*Business, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*BusinessService, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	ListAppointmentsByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]Appointment, error)

	// ListOccupants returns the pending and confirmed appointments of a business on date,
	// ordered by start time. It takes no lock; use it for read-only views.
	ListOccupants(ctx context.Context, businessID uuid.UUID, date time.Time) ([]Appointment, error)

	// WithinDay runs fn in a transaction that is serialized with every other WithinDay
	// call for the same business and date. Writes made through tx become visible only
	// if fn returns nil.
	WithinDay(ctx context.Context, businessID uuid.UUID, date time.Time, fn func(ctx context.Context, tx DayTx) error) error

	// UpdateAppointmentStatus moves an appointment from one status to another.
	// It returns ErrAppointmentNotFound when the appointment is not currently in from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// UpdateAppointmentNotes replaces the notes of a pending or confirmed appointment and
	// leaves date and times alone. It returns ErrAppointmentNotFound for any other status.
	UpdateAppointmentNotes(ctx context.Context, id uuid.UUID, notes *string) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// DayTx is the view of one business day held under the day lock.
type DayTx interface {
	// ListOccupants re-reads the pending and confirmed appointments of the locked day.
	ListOccupants(ctx context.Context) ([]Appointment, error)
	// GetAppointmentForUpdate loads an appointment and holds it until the transaction ends.
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreatePendingAppointment(ctx context.Context, na NewAppointment) (*Appointment, error)
	// MoveAppointment changes date, times and notes of an appointment; the new date
	// must be the locked day. Implementations without row locks return
	// ErrConcurrentUpdate at commit if the slot read through the transaction changed.
	MoveAppointment(ctx context.Context, id uuid.UUID, slot Slot) (*Appointment, error)
}
