package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-availability/internal/schedule"
)

type dayKey struct {
	businessID uuid.UUID
	date       string
}

// MemoryRepository keeps everything in process memory. It honours the same
// per-day serialization contract as PgRepository and is meant for tests and
// single-instance development runs.
type MemoryRepository struct {
	mu           sync.RWMutex
	businesses   map[uuid.UUID]Business
	services     map[uuid.UUID]BusinessService
	appointments map[uuid.UUID]Appointment
	events       []EventLog

	locksMu  sync.Mutex
	dayLocks map[dayKey]*sync.Mutex

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		businesses:   make(map[uuid.UUID]Business),
		services:     make(map[uuid.UUID]BusinessService),
		appointments: make(map[uuid.UUID]Appointment),
		dayLocks:     make(map[dayKey]*sync.Mutex),
		now:          time.Now,
	}
}

// PutBusiness inserts or replaces a business.
func (r *MemoryRepository) PutBusiness(b Business) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.businesses[b.ID] = b
}

// PutService inserts or replaces a service.
func (r *MemoryRepository) PutService(s BusinessService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.ID] = s
}

// PutAppointment inserts or replaces an appointment without any conflict check.
func (r *MemoryRepository) PutAppointment(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Date = schedule.DateOf(a.Date)
	r.appointments[a.ID] = a
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) GetBusinessByID(_ context.Context, id uuid.UUID) (*Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.businesses[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) GetServiceByID(_ context.Context, id uuid.UUID) (*BusinessService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointmentsByClient(_ context.Context, clientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a Appointment) bool { return a.ClientID == clientID }, limit, offset), nil
}

func (r *MemoryRepository) ListAppointmentsByBusiness(_ context.Context, businessID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a Appointment) bool { return a.BusinessID == businessID }, limit, offset), nil
}

func (r *MemoryRepository) ListOccupants(_ context.Context, businessID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.occupantsLocked(businessID, date), nil
}

func (r *MemoryRepository) WithinDay(ctx context.Context, businessID uuid.UUID, date time.Time, fn func(ctx context.Context, tx DayTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := r.dayLock(businessID, date)
	lock.Lock()
	defer lock.Unlock()

	tx := &memDayTx{
		repo:       r,
		businessID: businessID,
		date:       schedule.DateOf(date),
		reads:      make(map[uuid.UUID]Appointment),
		writes:     make(map[uuid.UUID]Appointment),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Moves off another day do not hold this day's lock, so check nothing moved underneath.
	for id := range tx.writes {
		read, ok := tx.reads[id]
		if !ok {
			continue
		}
		if current, ok := r.appointments[id]; !ok || !sameSlot(current, read) {
			return ErrConcurrentUpdate
		}
	}
	for id, a := range tx.writes {
		// Status changes do not take the day lock; keep the latest one.
		if current, ok := r.appointments[id]; ok {
			a.Status = current.Status
		}
		r.appointments[id] = a
	}
	return nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentNotes(_ context.Context, id uuid.UUID, notes *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || !a.Status.Occupies() {
		return nil, ErrAppointmentNotFound
	}
	a.Notes = nil
	if notes != nil {
		n := *notes
		a.Notes = &n
	}
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRepository) dayLock(businessID uuid.UUID, date time.Time) *sync.Mutex {
	key := dayKey{businessID: businessID, date: schedule.FormatDate(date)}

	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.dayLocks[key]
	if !ok {
		l = &sync.Mutex{}
		r.dayLocks[key] = l
	}
	return l
}

func (r *MemoryRepository) occupantsLocked(businessID uuid.UUID, date time.Time) []Appointment {
	day := schedule.DateOf(date)
	var out []Appointment
	for _, a := range r.appointments {
		if a.BusinessID == businessID && a.Date.Equal(day) && a.Status.Occupies() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func (r *MemoryRepository) list(match func(Appointment) bool, limit, offset int) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})

	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// memDayTx buffers writes until WithinDay's callback returns successfully.
type memDayTx struct {
	repo       *MemoryRepository
	businessID uuid.UUID
	date       time.Time
	reads      map[uuid.UUID]Appointment
	writes     map[uuid.UUID]Appointment
}

func (t *memDayTx) ListOccupants(_ context.Context) ([]Appointment, error) {
	t.repo.mu.RLock()
	committed := t.repo.occupantsLocked(t.businessID, t.date)
	t.repo.mu.RUnlock()

	seen := make(map[uuid.UUID]bool, len(committed))
	var out []Appointment
	for _, a := range committed {
		seen[a.ID] = true
		if w, ok := t.writes[a.ID]; ok {
			a = w
		}
		if a.Date.Equal(t.date) && a.Status.Occupies() {
			out = append(out, a)
		}
	}
	for id, w := range t.writes {
		if !seen[id] && w.BusinessID == t.businessID && w.Date.Equal(t.date) && w.Status.Occupies() {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (t *memDayTx) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if w, ok := t.writes[id]; ok {
		return &w, nil
	}
	a, err := t.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := t.reads[id]; !ok {
		t.reads[id] = *a
	}
	return a, nil
}

func (t *memDayTx) CreatePendingAppointment(_ context.Context, na NewAppointment) (*Appointment, error) {
	if na.BusinessID != t.businessID || !schedule.DateOf(na.Date).Equal(t.date) {
		return nil, fmt.Errorf("create appointment outside locked day %s", dayLockKey(t.businessID, t.date))
	}

	now := t.repo.now()
	a := Appointment{
		ID:         uuid.New(),
		BusinessID: na.BusinessID,
		ServiceID:  na.ServiceID,
		ClientID:   na.ClientID,
		Date:       schedule.DateOf(na.Date),
		StartTime:  na.StartTime,
		EndTime:    na.EndTime,
		Status:     StatusPending,
		Notes:      na.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.writes[a.ID] = a
	return &a, nil
}

func (t *memDayTx) MoveAppointment(ctx context.Context, id uuid.UUID, slot Slot) (*Appointment, error) {
	if !schedule.DateOf(slot.Date).Equal(t.date) {
		return nil, fmt.Errorf("move appointment outside locked day %s", dayLockKey(t.businessID, t.date))
	}

	current, err := t.GetAppointmentForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	a := *current
	a.Date = schedule.DateOf(slot.Date)
	a.StartTime = slot.StartTime
	a.EndTime = slot.EndTime
	a.Notes = slot.Notes
	a.UpdatedAt = t.repo.now()
	t.writes[id] = a
	return &a, nil
}

// sameSlot compares the fields a move writes. Status is excluded.
func sameSlot(a, b Appointment) bool {
	if !a.Date.Equal(b.Date) || a.StartTime != b.StartTime || a.EndTime != b.EndTime {
		return false
	}
	if a.Notes == nil || b.Notes == nil {
		return a.Notes == b.Notes
	}
	return *a.Notes == *b.Notes
}
