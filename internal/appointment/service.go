package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/booking-availability/internal/availability"
	"github.com/hackgods/booking-availability/internal/config"
	redisclient "github.com/hackgods/booking-availability/internal/redis"
	"github.com/hackgods/booking-availability/internal/schedule"
	"github.com/hackgods/booking-availability/internal/telemetry"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled   = "APPOINTMENT_RESCHEDULED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

var (
	ErrDayBusy = errors.New("business day is busy with another booking, please retry")
)

type Service struct {
	repo   Repository
	locker redisclient.DayLocker
	cfg    config.Config
	logger zerolog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithNow replaces the wall clock used to tell past from future appointments.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDayLocker adds a distributed lock taken around every booking write.
func WithDayLocker(l redisclient.DayLocker) Option {
	return func(s *Service) { s.locker = l }
}

func NewService(repo Repository, cfg config.Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With().Str("component", "appointment_service").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	BusinessID uuid.UUID
	ServiceID  uuid.UUID
	Date       time.Time
	StartTime  schedule.Clock
	Notes      *string
}

// RescheduleRequest changes any of date, start time and notes; nil fields keep their value.
type RescheduleRequest struct {
	Date      *time.Time
	StartTime *schedule.Clock
	Notes     *string
}

// CreateAppointment books a pending appointment for the acting client.
// The end time always comes from the service duration. The occupant read, the conflict
// check and the insert happen under one per-business-day lock, so of several overlapping
// concurrent requests exactly one succeeds and the rest get ErrBookingConflict.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, req CreateRequest) (*Appointment, error) {
	svc, biz, err := s.loadBookable(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		s.recordBooking("create", err)
		return nil, err
	}

	date := schedule.DateOf(req.Date)
	candidate := schedule.Span(req.StartTime, svc.DurationMinutes)
	if err := s.checkBookable(biz, date, candidate); err != nil {
		s.recordBooking("create", err)
		return nil, err
	}

	var created *Appointment
	err = s.withDay(ctx, biz.ID, date, func(ctx context.Context, tx DayTx) error {
		occupants, err := tx.ListOccupants(ctx)
		if err != nil {
			return fmt.Errorf("list occupants: %w", err)
		}
		if err := ValidateNoConflict(biz.ID, date, candidate, occupants, uuid.Nil); err != nil {
			return err
		}

		appt, err := tx.CreatePendingAppointment(ctx, NewAppointment{
			BusinessID: biz.ID,
			ServiceID:  svc.ID,
			ClientID:   actor.UserID,
			Date:       date,
			StartTime:  candidate.Start,
			EndTime:    candidate.End,
			Notes:      req.Notes,
		})
		if err != nil {
			return fmt.Errorf("create pending appointment: %w", err)
		}
		created = appt
		return nil
	})
	s.recordBooking("create", err)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"business_id": biz.ID.String(),
		"service_id":  svc.ID.String(),
		"client_id":   actor.UserID.String(),
		"date":        schedule.FormatDate(date),
		"start_time":  created.StartTime.String(),
		"end_time":    created.EndTime.String(),
	})
	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("business_id", biz.ID.String()).
		Str("date", schedule.FormatDate(date)).
		Stringer("interval", created.Interval()).
		Msg("appointment created")

	return created, nil
}

// maxRescheduleAttempts bounds how often a move is retried after the appointment
// changed between loading it and locking its day.
const maxRescheduleAttempts = 3

// RescheduleAppointment moves an active appointment and/or edits its notes.
// The resulting slot is built from the appointment as re-read under the target day's lock,
// and a new time range is checked against every other appointment of the business on that
// date. Notes-only edits never write date or times.
func (s *Service) RescheduleAppointment(ctx context.Context, actor Actor, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	moving := req.Date != nil || req.StartTime != nil
	if !moving && req.Notes == nil {
		return s.GetAppointment(ctx, actor, id)
	}

	var (
		before, updated *Appointment
		err             error
	)
	for attempt := 1; ; attempt++ {
		if moving {
			before, updated, err = s.moveOnce(ctx, actor, id, req)
		} else {
			before, updated, err = s.editNotes(ctx, actor, id, req.Notes)
		}
		if !errors.Is(err, ErrConcurrentUpdate) || attempt == maxRescheduleAttempts {
			break
		}
		s.logger.Debug().
			Str("appointment_id", id.String()).
			Int("attempt", attempt).
			Msg("appointment changed while rescheduling, retrying")
	}
	if moving {
		s.recordBooking("reschedule", err)
	}
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentRescheduled, map[string]any{
		"actor_id":      actor.UserID.String(),
		"from_date":     schedule.FormatDate(before.Date),
		"from_interval": before.Interval().String(),
		"to_date":       schedule.FormatDate(updated.Date),
		"to_interval":   updated.Interval().String(),
	})

	return updated, nil
}

func (s *Service) moveOnce(ctx context.Context, actor Actor, id uuid.UUID, req RescheduleRequest) (*Appointment, *Appointment, error) {
	appt, biz, party, err := s.loadForActor(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkEditable(appt, party); err != nil {
		return nil, nil, err
	}

	svc, err := s.repo.GetServiceByID(ctx, appt.ServiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("load service: %w", err)
	}

	date := appt.Date
	if req.Date != nil {
		date = schedule.DateOf(*req.Date)
	}

	var before, updated *Appointment
	err = s.withDay(ctx, biz.ID, date, func(ctx context.Context, tx DayTx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkEditable(current, party); err != nil {
			return err
		}
		// Moved to another day since it was loaded; that day's lock is not held.
		if req.Date == nil && !current.Date.Equal(date) {
			return ErrConcurrentUpdate
		}

		slot := Slot{Date: date, StartTime: current.StartTime, EndTime: current.EndTime, Notes: current.Notes}
		if req.StartTime != nil {
			slot.StartTime = *req.StartTime
		}
		if req.Notes != nil {
			slot.Notes = req.Notes
		}

		if !slot.Date.Equal(current.Date) || slot.StartTime != current.StartTime {
			candidate := schedule.Span(slot.StartTime, svc.DurationMinutes)
			if err := s.checkBookable(biz, slot.Date, candidate); err != nil {
				return err
			}
			occupants, err := tx.ListOccupants(ctx)
			if err != nil {
				return fmt.Errorf("list occupants: %w", err)
			}
			if err := ValidateNoConflict(biz.ID, slot.Date, candidate, occupants, id); err != nil {
				return err
			}
			slot.EndTime = candidate.End
		}

		moved, err := tx.MoveAppointment(ctx, id, slot)
		if err != nil {
			return fmt.Errorf("move appointment: %w", err)
		}
		before, updated = current, moved
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, updated, nil
}

func (s *Service) editNotes(ctx context.Context, actor Actor, id uuid.UUID, notes *string) (*Appointment, *Appointment, error) {
	appt, _, party, err := s.loadForActor(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkEditable(appt, party); err != nil {
		return nil, nil, err
	}

	updated, err := s.repo.UpdateAppointmentNotes(ctx, id, notes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}
		return nil, nil, fmt.Errorf("update notes: %w", err)
	}
	return updated, updated, nil
}

// UpdateStatus applies a status literal on behalf of the business owner or the client.
// Which transitions each party may take is fixed by CheckTransition; clients may only act
// on appointments that have not started yet.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, rawStatus string) (*Appointment, error) {
	to, err := ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	appt, _, party, err := s.loadForActor(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, appt, to, party)
}

// CancelByClient is the client's own cancellation of a future appointment.
func (s *Service) CancelByClient(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.ClientID != actor.UserID {
		return nil, fmt.Errorf("%w: only the client who booked may cancel", ErrUnauthorized)
	}

	return s.transition(ctx, actor, appt, StatusCancelled, PartyClient)
}

func (s *Service) transition(ctx context.Context, actor Actor, appt *Appointment, to Status, party Party) (*Appointment, error) {
	if err := CheckTransition(appt.Status, to, party); err != nil {
		return nil, err
	}
	if err := s.checkClientWindow(appt, party); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	telemetry.RecordStatusChange(string(appt.Status), string(to))
	s.logEvent(ctx, appt.ID, EventAppointmentStatusChanged, map[string]any{
		"actor_id": actor.UserID.String(),
		"party":    party.String(),
		"from":     string(appt.Status),
		"to":       string(to),
	})
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Msg("appointment status changed")

	return updated, nil
}

// GetAppointment returns an appointment visible to its client or the business owner.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, _, _, err := s.loadForActor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// ListAppointmentsByClient returns the actor's own appointments.
func (s *Service) ListAppointmentsByClient(ctx context.Context, actor Actor, page Page) ([]Appointment, Page, error) {
	page = page.clamp()

	appointments, err := s.repo.ListAppointmentsByClient(ctx, actor.UserID, page.Limit, page.Offset)
	if err != nil {
		return nil, page, fmt.Errorf("list appointments by client: %w", err)
	}
	return appointments, page, nil
}

// ListAppointmentsByBusiness returns the appointments of a business to its owner.
func (s *Service) ListAppointmentsByBusiness(ctx context.Context, actor Actor, businessID uuid.UUID, page Page) ([]Appointment, Page, error) {
	biz, err := s.repo.GetBusinessByID(ctx, businessID)
	if err != nil {
		return nil, page, err
	}
	if biz.OwnerID != actor.UserID {
		return nil, page, fmt.Errorf("%w: only the owner may list business appointments", ErrUnauthorized)
	}
	if !biz.Active {
		return nil, page, ErrBusinessInactive
	}

	page = page.clamp()
	appointments, err := s.repo.ListAppointmentsByBusiness(ctx, businessID, page.Limit, page.Offset)
	if err != nil {
		return nil, page, fmt.Errorf("list appointments by business: %w", err)
	}
	return appointments, page, nil
}

// Availability computes the bookable slots of one business day. Without a service the
// default 30 minute duration is used.
func (s *Service) Availability(ctx context.Context, businessID uuid.UUID, date time.Time, serviceID *uuid.UUID) (availability.DayAvailability, error) {
	biz, minutes, err := s.loadForAvailability(ctx, businessID, serviceID)
	if err != nil {
		return availability.DayAvailability{}, err
	}

	date = schedule.DateOf(date)
	var occupied []schedule.Interval
	if _, open := biz.Schedule.Day(date.Weekday()); open {
		occupants, err := s.repo.ListOccupants(ctx, biz.ID, date)
		if err != nil {
			return availability.DayAvailability{}, fmt.Errorf("list occupants: %w", err)
		}
		occupied = Occupied(occupants)
	}

	telemetry.RecordAvailabilityDays(1)
	return availability.Compute(biz.Schedule, date, minutes, occupied), nil
}

// AvailabilityRange computes availability for each date in [from, to].
func (s *Service) AvailabilityRange(ctx context.Context, businessID uuid.UUID, from, to time.Time, serviceID *uuid.UUID) ([]availability.DayAvailability, error) {
	from, to = schedule.DateOf(from), schedule.DateOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, schedule.FormatDate(to), schedule.FormatDate(from))
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > s.cfg.MaxRangeDays && s.cfg.MaxRangeDays > 0 {
		return nil, fmt.Errorf("%w: %d days requested, at most %d", ErrInvalidRange, days, s.cfg.MaxRangeDays)
	}

	biz, minutes, err := s.loadForAvailability(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}

	days, err := availability.Days(biz.Schedule, from, to, minutes, func(d time.Time) ([]schedule.Interval, error) {
		occupants, err := s.repo.ListOccupants(ctx, biz.ID, d)
		if err != nil {
			return nil, fmt.Errorf("list occupants for %s: %w", schedule.FormatDate(d), err)
		}
		return Occupied(occupants), nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.RecordAvailabilityDays(len(days))
	return days, nil
}

// loadBookable resolves an active service and its active business.
func (s *Service) loadBookable(ctx context.Context, businessID, serviceID uuid.UUID) (*BusinessService, *Business, error) {
	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, nil, err
	}
	if !svc.Active {
		return nil, nil, ErrServiceInactive
	}
	if svc.DurationMinutes <= 0 {
		return nil, nil, ErrInvalidDuration
	}

	biz, err := s.repo.GetBusinessByID(ctx, businessID)
	if err != nil {
		return nil, nil, err
	}
	if !biz.Active {
		return nil, nil, ErrBusinessInactive
	}
	if svc.BusinessID != biz.ID {
		return nil, nil, ErrServiceMismatch
	}

	return svc, biz, nil
}

func (s *Service) loadForAvailability(ctx context.Context, businessID uuid.UUID, serviceID *uuid.UUID) (*Business, int, error) {
	if serviceID == nil {
		biz, err := s.repo.GetBusinessByID(ctx, businessID)
		if err != nil {
			return nil, 0, err
		}
		if !biz.Active {
			return nil, 0, ErrBusinessInactive
		}
		return biz, availability.DefaultServiceMinutes, nil
	}

	svc, biz, err := s.loadBookable(ctx, businessID, *serviceID)
	if err != nil {
		return nil, 0, err
	}
	return biz, svc.DurationMinutes, nil
}

// loadForActor loads an appointment and decides in which capacity the actor touches it.
func (s *Service) loadForActor(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, *Business, Party, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, nil, 0, err
	}
	biz, err := s.repo.GetBusinessByID(ctx, appt.BusinessID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load business: %w", err)
	}

	var party Party
	if biz.OwnerID == actor.UserID {
		party |= PartyOwner
	}
	if appt.ClientID == actor.UserID {
		party |= PartyClient
	}
	if party == 0 {
		return nil, nil, 0, fmt.Errorf("%w: appointment belongs to another client and business", ErrUnauthorized)
	}

	return appt, biz, party, nil
}

// checkBookable rejects ranges outside the business hours of date or already started.
func (s *Service) checkBookable(biz *Business, date time.Time, candidate schedule.Interval) error {
	if !candidate.Start.Valid() || candidate.Start >= schedule.MinutesPerDay {
		return fmt.Errorf("%w: start time %s", ErrInvalidInput, candidate.Start)
	}

	day, open := biz.Schedule.Day(date.Weekday())
	if !open {
		return fmt.Errorf("%w: closed on %s", ErrOutsideBusinessHours, schedule.WeekdayName(date.Weekday()))
	}
	if !candidate.Within(day.Window()) {
		return fmt.Errorf("%w: %s not within %s", ErrOutsideBusinessHours, candidate, day.Window())
	}

	if !schedule.At(date, candidate.Start, s.cfg.Location).After(s.now()) {
		return ErrPastAppointment
	}
	return nil
}

// checkEditable rejects edits of cancelled or completed appointments and client edits of
// appointments that already started.
func (s *Service) checkEditable(appt *Appointment, party Party) error {
	if appt.Status.Terminal() {
		return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, appt.Status)
	}
	return s.checkClientWindow(appt, party)
}

func (s *Service) checkClientWindow(appt *Appointment, party Party) error {
	if party&PartyOwner == 0 && !s.inFuture(appt) {
		return fmt.Errorf("%w: clients can only change upcoming appointments", ErrPastAppointment)
	}
	return nil
}

func (s *Service) inFuture(appt *Appointment) bool {
	return schedule.At(appt.Date, appt.StartTime, s.cfg.Location).After(s.now())
}

// withDay runs fn under the optional distributed day lock and the repository's day transaction.
func (s *Service) withDay(ctx context.Context, businessID uuid.UUID, date time.Time, fn func(ctx context.Context, tx DayTx) error) error {
	run := func(ctx context.Context) error {
		return s.repo.WithinDay(ctx, businessID, date, fn)
	}
	if s.locker == nil {
		return run(ctx)
	}

	err := s.locker.WithDayLock(ctx, businessID, date, run)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrDayBusy
	}
	return err
}

func (s *Service) recordBooking(operation string, err error) {
	outcome := telemetry.OutcomeCreated
	switch {
	case err == nil:
	case errors.Is(err, ErrBookingConflict):
		outcome = telemetry.OutcomeConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInactive), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrUnauthorized):
		outcome = telemetry.OutcomeRejected
	default:
		outcome = telemetry.OutcomeError
	}
	telemetry.RecordBooking(operation, outcome)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
