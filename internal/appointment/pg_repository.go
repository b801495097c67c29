package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/booking-availability/internal/schedule"
)

const appointmentColumns = `id, business_id, service_id, client_id, appointment_date,
	start_minute, end_minute, status, notes, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanBusiness(row pgx.Row) (*Business, error) {
	var b Business
	var rawSchedule []byte

	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.Name,
		&rawSchedule,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}

	b.Schedule = schedule.WeeklySchedule{}
	if len(rawSchedule) > 0 {
		if err := json.Unmarshal(rawSchedule, &b.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule of business %s: %w", b.ID, err)
		}
	}
	if err := b.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("schedule of business %s: %w", b.ID, err)
	}
	return &b, nil
}

func scanService(row pgx.Row) (*BusinessService, error) {
	var s BusinessService

	err := row.Scan(
		&s.ID,
		&s.BusinessID,
		&s.Name,
		&s.DurationMinutes,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end int
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.BusinessID,
		&a.ServiceID,
		&a.ClientID,
		&a.Date,
		&start,
		&end,
		&a.Status,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.DateOf(a.Date)
	a.StartTime = schedule.Clock(start)
	a.EndTime = schedule.Clock(end)
	a.Notes = notes
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// dayLockKey is hashed into a transaction-scoped advisory lock.
func dayLockKey(businessID uuid.UUID, date time.Time) string {
	return "day:" + businessID.String() + ":" + schedule.FormatDate(date)
}

// Interface methods

func (r *PgRepository) GetBusinessByID(ctx context.Context, id uuid.UUID) (*Business, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, schedules, is_active, created_at, updated_at
		FROM businesses
		WHERE id = $1
	`, id)
	return scanBusiness(row)
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*BusinessService, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, is_active, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY appointment_date ASC, start_minute ASC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByBusiness(ctx context.Context, businessID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
		ORDER BY appointment_date ASC, start_minute ASC
		LIMIT $2 OFFSET $3
	`, businessID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListOccupants(ctx context.Context, businessID uuid.UUID, date time.Time) ([]Appointment, error) {
	return listOccupants(ctx, r.pool, businessID, date)
}

func (r *PgRepository) WithinDay(ctx context.Context, businessID uuid.UUID, date time.Time, fn func(ctx context.Context, tx DayTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin day transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Held until commit or rollback. Under READ COMMITTED every statement after the lock
	// sees rows committed by the previous holder.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, dayLockKey(businessID, date)); err != nil {
		return fmt.Errorf("acquire day lock: %w", err)
	}

	if err := fn(ctx, &pgDayTx{tx: tx, businessID: businessID, date: schedule.DateOf(date)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit day transaction: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentNotes(ctx context.Context, id uuid.UUID, notes *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentColumns, id, notes)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listOccupants(ctx context.Context, q querier, businessID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
		  AND appointment_date = $2
		  AND status IN ('pending', 'confirmed')
		ORDER BY start_minute ASC
	`, businessID, schedule.DateOf(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// pgDayTx runs inside the transaction opened by WithinDay.
type pgDayTx struct {
	tx         pgx.Tx
	businessID uuid.UUID
	date       time.Time
}

func (t *pgDayTx) ListOccupants(ctx context.Context) ([]Appointment, error) {
	return listOccupants(ctx, t.tx, t.businessID, t.date)
}

func (t *pgDayTx) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgDayTx) CreatePendingAppointment(ctx context.Context, na NewAppointment) (*Appointment, error) {
	if na.BusinessID != t.businessID || !schedule.DateOf(na.Date).Equal(t.date) {
		return nil, fmt.Errorf("create appointment outside locked day %s", dayLockKey(t.businessID, t.date))
	}

	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, business_id, service_id, client_id, appointment_date, start_minute, end_minute, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(), na.BusinessID, na.ServiceID, na.ClientID, t.date,
		na.StartTime.Minutes(), na.EndTime.Minutes(), na.Notes)

	return scanAppointment(row)
}

func (t *pgDayTx) MoveAppointment(ctx context.Context, id uuid.UUID, slot Slot) (*Appointment, error) {
	if !schedule.DateOf(slot.Date).Equal(t.date) {
		return nil, fmt.Errorf("move appointment outside locked day %s", dayLockKey(t.businessID, t.date))
	}

	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
		    start_minute = $3,
		    end_minute = $4,
		    notes = $5,
		    updated_at = now()
		WHERE id = $1
		  AND business_id = $6
		RETURNING `+appointmentColumns,
		id, t.date, slot.StartTime.Minutes(), slot.EndTime.Minutes(), slot.Notes, t.businessID)

	return scanAppointment(row)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
