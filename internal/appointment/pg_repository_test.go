package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/booking-availability/internal/config"
	"github.com/hackgods/booking-availability/internal/db"
	"github.com/hackgods/booking-availability/internal/schedule"
)

// pgFixture seeds one business with a 60 minute service into the database named by POSTGRES_DSN.
type pgFixture struct {
	pool     *pgxpool.Pool
	repo     *PgRepository
	svc      *Service
	owner    Actor
	business uuid.UUID
	service  uuid.UUID
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.EnsureSchema(ctx, pool))

	f := &pgFixture{
		pool:     pool,
		repo:     NewPgRepository(pool),
		owner:    Actor{UserID: uuid.New()},
		business: uuid.New(),
		service:  uuid.New(),
	}

	week, err := json.Marshal(schedule.WeeklySchedule{
		"monday": {Open: schedule.NewClock(9, 0), Close: schedule.NewClock(17, 0)},
	})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO businesses (id, owner_id, name, schedules) VALUES ($1, $2, 'Test Studio', $3)`,
		f.business, f.owner.UserID, week)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO services (id, business_id, name, duration_minutes) VALUES ($1, $2, 'Session', 60)`,
		f.service, f.business)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM event_logs WHERE appointment_id IN (SELECT id FROM appointments WHERE business_id = $1)`, f.business)
		_, _ = pool.Exec(ctx, `DELETE FROM appointments WHERE business_id = $1`, f.business)
		_, _ = pool.Exec(ctx, `DELETE FROM services WHERE business_id = $1`, f.business)
		_, _ = pool.Exec(ctx, `DELETE FROM businesses WHERE id = $1`, f.business)
	})

	f.svc = NewService(f.repo, config.Config{Location: time.UTC, MaxRangeDays: 31}, zerolog.Nop(),
		WithNow(func() time.Time { return fixedNow }))
	return f
}

func (f *pgFixture) book(t *testing.T, client Actor, start string) (*Appointment, error) {
	t.Helper()
	return f.svc.CreateAppointment(context.Background(), client, CreateRequest{
		BusinessID: f.business,
		ServiceID:  f.service,
		Date:       monday,
		StartTime:  clockOf(t, start),
	})
}

func TestPgRepository_ConcurrentSameSlot(t *testing.T) {
	f := newPgFixture(t)

	const racers = 8
	ten := clockOf(t, "10:00")
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateAppointment(context.Background(), Actor{UserID: uuid.New()}, CreateRequest{
				BusinessID: f.business,
				ServiceID:  f.service,
				Date:       monday,
				StartTime:  ten,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrBookingConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, racers-1, conflicts)

	occupants, err := f.repo.ListOccupants(context.Background(), f.business, monday)
	require.NoError(t, err)
	assert.Len(t, occupants, 1)
}

func TestPgRepository_WithinDayRollsBack(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	iv := span(t, "12:00", "13:00")

	boom := errors.New("boom")
	err := f.repo.WithinDay(ctx, f.business, monday, func(ctx context.Context, tx DayTx) error {
		_, err := tx.CreatePendingAppointment(ctx, NewAppointment{
			BusinessID: f.business,
			ServiceID:  f.service,
			ClientID:   uuid.New(),
			Date:       monday,
			StartTime:  iv.Start,
			EndTime:    iv.End,
		})
		require.NoError(t, err)

		occupants, err := tx.ListOccupants(ctx)
		require.NoError(t, err)
		assert.Len(t, occupants, 1)
		return boom
	})
	require.ErrorIs(t, err, boom)

	occupants, err := f.repo.ListOccupants(ctx, f.business, monday)
	require.NoError(t, err)
	assert.Empty(t, occupants)
}

func TestPgRepository_StatusAndNotes(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	appt, err := f.book(t, Actor{UserID: uuid.New()}, "14:00")
	require.NoError(t, err)

	_, err = f.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusConfirmed, StatusCompleted)
	assert.ErrorIs(t, err, ErrAppointmentNotFound, "status is still pending")

	confirmed, err := f.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	notes := "parking at the back"
	edited, err := f.repo.UpdateAppointmentNotes(ctx, appt.ID, &notes)
	require.NoError(t, err)
	assert.Equal(t, appt.Interval(), edited.Interval())
	require.NotNil(t, edited.Notes)
	assert.Equal(t, notes, *edited.Notes)

	_, err = f.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusConfirmed, StatusCancelled)
	require.NoError(t, err)
	_, err = f.repo.UpdateAppointmentNotes(ctx, appt.ID, &notes)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
