package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/booking-availability/internal/appointment"
	"github.com/hackgods/booking-availability/internal/auth"
	"github.com/hackgods/booking-availability/internal/config"
	"github.com/hackgods/booking-availability/internal/schedule"
)

var testSecret = []byte("router-secret")

type apiFixture struct {
	router   http.Handler
	repo     *appointment.MemoryRepository
	business appointment.Business
	service  appointment.BusinessService
	owner    uuid.UUID
	client   uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		repo:   appointment.NewMemoryRepository(),
		owner:  uuid.New(),
		client: uuid.New(),
	}

	f.business = appointment.Business{
		ID:      uuid.New(),
		OwnerID: f.owner,
		Name:    "Studio",
		Schedule: schedule.WeeklySchedule{
			"monday": {Open: schedule.NewClock(9, 0), Close: schedule.NewClock(12, 0)},
			"sunday": {Closed: true},
		},
		Active: true,
	}
	f.service = appointment.BusinessService{ID: uuid.New(), BusinessID: f.business.ID, Name: "Consult", DurationMinutes: 60, Active: true}
	f.repo.PutBusiness(f.business)
	f.repo.PutService(f.service)

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	svc := appointment.NewService(f.repo, config.Config{Location: time.UTC, MaxRangeDays: 7}, zerolog.Nop(),
		appointment.WithNow(func() time.Time { return now }))

	f.router = NewRouter(RouterConfig{
		Service:   svc,
		Logger:    zerolog.Nop(),
		JWTSecret: testSecret,
		Env:       "test",
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, user uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != uuid.Nil {
		token, err := auth.Issue(testSecret, auth.Claims{UserID: user.String()}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *apiFixture) create(t *testing.T, start string) *httptest.ResponseRecorder {
	return f.do(t, http.MethodPost, "/appointments", f.client, CreateAppointmentRequest{
		BusinessID:      f.business.ID.String(),
		ServiceID:       f.service.ID.String(),
		AppointmentDate: "2026-10-19",
		StartTime:       start,
	})
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestLiveness(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/health/live", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReadiness_NoDependencies(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/health/ready", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[ReadinessResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "disabled", resp.Dependencies["postgres"])
	assert.Equal(t, "disabled", resp.Dependencies["redis"])
}

func TestDayAvailability(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusCreated, f.create(t, "10:00").Code)

	rr := f.do(t, http.MethodGet, "/businesses/"+f.business.ID.String()+"/availability/2026-10-19", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Date      string `json:"date"`
		Available bool   `json:"available"`
		TimeSlots []struct {
			Time      string `json:"time"`
			Available bool   `json:"available"`
			Reason    string `json:"reason"`
		} `json:"timeSlots"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	assert.Equal(t, "2026-10-19", body.Date)
	assert.True(t, body.Available)
	require.Len(t, body.TimeSlots, 6)
	assert.Equal(t, "09:00", body.TimeSlots[0].Time)
	assert.True(t, body.TimeSlots[0].Available)
	assert.Equal(t, "10:00", body.TimeSlots[2].Time)
	assert.Equal(t, "slot already booked", body.TimeSlots[2].Reason)

	rr = f.do(t, http.MethodGet, "/businesses/"+f.business.ID.String()+"/availability/2026-10-18", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"date":"2026-10-18","available":false,"timeSlots":[]}`, rr.Body.String())
}

func TestDayAvailability_BadInput(t *testing.T) {
	f := newAPIFixture(t)
	base := "/businesses/" + f.business.ID.String() + "/availability/"

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, base+"19-10-2026", uuid.Nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, base+"2026-10-19?service_id=abc", uuid.Nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/businesses/nope/availability/2026-10-19", uuid.Nil, nil).Code)

	rr := f.do(t, http.MethodGet, "/businesses/"+uuid.NewString()+"/availability/2026-10-19", uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "business_not_found", decode[ErrorResponse](t, rr).Error)
}

func TestRangeAvailability(t *testing.T) {
	f := newAPIFixture(t)
	base := "/businesses/" + f.business.ID.String() + "/availability"

	rr := f.do(t, http.MethodGet, base+"?start=2026-10-18&end=2026-10-20", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	days := decode[[]DayAvailabilityResponse](t, rr)
	require.Len(t, days, 3)
	assert.False(t, days[0].Available)
	assert.True(t, days[1].Available)

	rr = f.do(t, http.MethodGet, base+"?start=2026-10-18&end=2026-11-30", uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_range", decode[ErrorResponse](t, rr).Error)
}

func TestCreateAppointment_API(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.create(t, "10:00")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	appt := decode[AppointmentResponse](t, rr)
	assert.Equal(t, "pending", appt.Status)
	assert.Equal(t, "2026-10-19", appt.AppointmentDate)
	assert.Equal(t, "11:00", appt.EndTime.String())
	assert.Equal(t, f.client, appt.ClientID)

	rr = f.create(t, "10:30")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "booking_conflict", decode[ErrorResponse](t, rr).Error)

	rr = f.create(t, "11:30")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "outside_business_hours", decode[ErrorResponse](t, rr).Error)

	rr = f.create(t, "25:00")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_start_time", decode[ErrorResponse](t, rr).Error)

	rr = f.do(t, http.MethodPost, "/appointments", uuid.Nil, CreateAppointmentRequest{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAppointmentLifecycle_API(t *testing.T) {
	f := newAPIFixture(t)

	appt := decode[AppointmentResponse](t, f.create(t, "09:00"))
	path := "/appointments/" + appt.ID.String()

	rr := f.do(t, http.MethodGet, path, uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodGet, path, f.owner, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	start := "10:00"
	rr = f.do(t, http.MethodPatch, path, f.client, RescheduleAppointmentRequest{StartTime: &start})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "11:00", decode[AppointmentResponse](t, rr).EndTime.String())

	rr = f.do(t, http.MethodPatch, path+"/status", f.client, UpdateStatusRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPatch, path+"/status", f.owner, UpdateStatusRequest{Status: "bogus"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = f.do(t, http.MethodPatch, path+"/status", f.owner, UpdateStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "confirmed", decode[AppointmentResponse](t, rr).Status)

	rr = f.do(t, http.MethodGet, "/appointments/client", f.client, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[AppointmentListResponse](t, rr).Appointments, 1)

	rr = f.do(t, http.MethodGet, "/businesses/"+f.business.ID.String()+"/appointments", f.client, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodGet, "/businesses/"+f.business.ID.String()+"/appointments?limit=5", f.owner, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[AppointmentListResponse](t, rr)
	assert.Equal(t, 5, list.Limit)
	assert.Len(t, list.Appointments, 1)

	rr = f.do(t, http.MethodGet, "/businesses/"+f.business.ID.String()+"/appointments?limit=1000&offset=-1", f.owner, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list = decode[AppointmentListResponse](t, rr)
	assert.Equal(t, appointment.MaxPageLimit, list.Limit, "echoes the applied cap")
	assert.Equal(t, 0, list.Offset)

	rr = f.do(t, http.MethodDelete, path, f.client, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancelled", decode[AppointmentResponse](t, rr).Status)

	rr = f.do(t, http.MethodPatch, path+"/status", f.owner, UpdateStatusRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rr).Error)

	// The cancelled range is bookable again.
	assert.Equal(t, http.StatusCreated, f.create(t, "10:00").Code)

	rr = f.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), f.client, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)
	h := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code, "limits are per IP")
}
