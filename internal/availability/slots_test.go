package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/booking-availability/internal/schedule"
)

// monday is 2026-10-19.
var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func clock(t *testing.T, s string) schedule.Clock {
	t.Helper()
	c, err := schedule.ParseClock(s)
	require.NoError(t, err)
	return c
}

func interval(t *testing.T, start, end string) schedule.Interval {
	t.Helper()
	return schedule.Interval{Start: clock(t, start), End: clock(t, end)}
}

func morningWeek(t *testing.T) schedule.WeeklySchedule {
	return schedule.WeeklySchedule{
		"monday":   {Open: clock(t, "09:00"), Close: clock(t, "12:00")},
		"saturday": {Open: clock(t, "09:00"), Close: clock(t, "12:00"), Closed: true},
	}
}

func slotTimes(slots []TimeSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time.String())
	}
	return out
}

func slotAt(t *testing.T, day DayAvailability, at string) TimeSlot {
	t.Helper()
	for _, s := range day.TimeSlots {
		if s.Time.String() == at {
			return s
		}
	}
	t.Fatalf("no slot at %s in %v", at, slotTimes(day.TimeSlots))
	return TimeSlot{}
}

func TestCompute_EmptyMorning(t *testing.T) {
	day := Compute(morningWeek(t), monday, 30, nil)

	require.True(t, day.Available)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, slotTimes(day.TimeSlots))
	for _, s := range day.TimeSlots {
		assert.True(t, s.Available, s.Time.String())
		assert.Empty(t, s.Reason)
	}
}

func TestCompute_BookedSlot(t *testing.T) {
	occupied := []schedule.Interval{interval(t, "10:00", "10:30")}
	day := Compute(morningWeek(t), monday, 30, occupied)

	assert.True(t, slotAt(t, day, "09:30").Available, "ends exactly when the booking starts")
	assert.True(t, slotAt(t, day, "10:30").Available, "starts exactly when the booking ends")

	booked := slotAt(t, day, "10:00")
	assert.False(t, booked.Available)
	assert.Equal(t, ReasonBooked, booked.Reason)
}

func TestCompute_InsufficientTimeBeforeClosing(t *testing.T) {
	day := Compute(morningWeek(t), monday, 60, nil)

	last := slotAt(t, day, "11:30")
	assert.False(t, last.Available)
	assert.Equal(t, ReasonInsufficientTime, last.Reason)

	assert.True(t, slotAt(t, day, "11:00").Available, "11:00-12:00 ends at closing")
}

func TestCompute_ClosedDays(t *testing.T) {
	week := morningWeek(t)

	saturday := monday.AddDate(0, 0, 5)
	sunday := monday.AddDate(0, 0, 6)

	for _, d := range []time.Time{saturday, sunday} {
		day := Compute(week, d, 30, nil)
		assert.False(t, day.Available, d.Weekday().String())
		assert.Empty(t, day.TimeSlots)
		assert.NotNil(t, day.TimeSlots)
		assert.Equal(t, d, day.Date)
	}
}

func TestCompute_EmptyWindowIsClosed(t *testing.T) {
	week := schedule.WeeklySchedule{"monday": {Open: clock(t, "12:00"), Close: clock(t, "09:00")}}

	day := Compute(week, monday, 30, nil)
	assert.False(t, day.Available)
	assert.Empty(t, day.TimeSlots)
}

func TestCompute_WeekendIsOrdinary(t *testing.T) {
	week := schedule.WeeklySchedule{"sunday": {Open: clock(t, "10:00"), Close: clock(t, "11:00")}}

	day := Compute(week, monday.AddDate(0, 0, 6), 30, nil)
	require.True(t, day.Available)
	assert.Equal(t, []string{"10:00", "10:30"}, slotTimes(day.TimeSlots))
}

func TestCompute_ServiceLongerThanWindow(t *testing.T) {
	day := Compute(morningWeek(t), monday, 240, nil)

	require.Len(t, day.TimeSlots, 6)
	for _, s := range day.TimeSlots {
		assert.False(t, s.Available)
		assert.Equal(t, ReasonInsufficientTime, s.Reason)
	}
}

func TestCompute_UnalignedClose(t *testing.T) {
	week := schedule.WeeklySchedule{"monday": {Open: clock(t, "09:00"), Close: clock(t, "10:15")}}

	day := Compute(week, monday, 15, nil)
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, slotTimes(day.TimeSlots), "ceil(75/30) slots")
	assert.True(t, slotAt(t, day, "10:00").Available, "10:00-10:15 fits")

	day = Compute(week, monday, 30, nil)
	assert.Equal(t, ReasonInsufficientTime, slotAt(t, day, "10:00").Reason)
}

func TestCompute_CompoundingOccupants(t *testing.T) {
	occupied := []schedule.Interval{
		interval(t, "09:00", "09:45"),
		interval(t, "09:15", "09:30"),
		interval(t, "11:00", "11:30"),
	}
	day := Compute(morningWeek(t), monday, 60, occupied)

	want := map[string]string{
		"09:00": ReasonBooked,
		"09:30": ReasonBooked,
		"10:00": "",
		"10:30": ReasonBooked,
		"11:00": ReasonBooked,
		"11:30": ReasonInsufficientTime,
	}
	for at, reason := range want {
		s := slotAt(t, day, at)
		assert.Equal(t, reason == "", s.Available, at)
		assert.Equal(t, reason, s.Reason, at)
	}
}

func TestCompute_OverlapProperty(t *testing.T) {
	week := schedule.WeeklySchedule{"monday": {Open: clock(t, "08:00"), Close: clock(t, "18:00")}}

	for _, duration := range []int{15, 30, 45, 60, 90} {
		for s := clock(t, "08:00"); s < clock(t, "18:00"); s = s.Add(20) {
			occ := schedule.Span(s, 25)
			day := Compute(week, monday, duration, []schedule.Interval{occ})

			for _, slot := range day.TimeSlots {
				if slot.Time.Add(duration) > clock(t, "18:00") {
					assert.Equal(t, ReasonInsufficientTime, slot.Reason)
					continue
				}
				overlaps := slot.Time < occ.End && slot.Time.Add(duration) > occ.Start
				assert.Equal(t, overlaps, slot.Reason == ReasonBooked, "slot %s duration %d occupant %s", slot.Time, duration, occ)
				assert.Equal(t, !overlaps, slot.Available)
			}
		}
	}
}

func TestCompute_SlotCountProperty(t *testing.T) {
	for open := 0; open < 12*60; open += 25 {
		for length := 5; length <= 8*60; length += 35 {
			week := schedule.WeeklySchedule{"monday": {Open: schedule.Clock(open), Close: schedule.Clock(open + length)}}
			day := Compute(week, monday, 30, nil)

			want := (length + SlotStep - 1) / SlotStep
			require.Len(t, day.TimeSlots, want, "open=%d length=%d", open, length)
			for _, s := range day.TimeSlots {
				fits := s.Time.Add(30) <= schedule.Clock(open+length)
				assert.Equal(t, fits, s.Available)
			}
		}
	}
}

func TestCompute_Idempotent(t *testing.T) {
	occupied := []schedule.Interval{interval(t, "10:00", "10:30")}
	week := morningWeek(t)

	first := Compute(week, monday, 45, occupied)
	second := Compute(week, monday, 45, occupied)
	assert.Equal(t, first, second)
}

func TestCompute_DefaultDuration(t *testing.T) {
	assert.Equal(t, Compute(morningWeek(t), monday, 30, nil), Compute(morningWeek(t), monday, 0, nil))
}

func TestDays(t *testing.T) {
	var asked []time.Time
	occupiedFor := func(d time.Time) ([]schedule.Interval, error) {
		asked = append(asked, d)
		return []schedule.Interval{interval(t, "09:00", "12:00")}, nil
	}

	days, err := Days(morningWeek(t), monday, monday.AddDate(0, 0, 6), 30, occupiedFor)
	require.NoError(t, err)
	require.Len(t, days, 7)

	assert.Equal(t, []time.Time{monday}, asked, "closed days are not queried")
	assert.True(t, days[0].Available)
	for _, s := range days[0].TimeSlots {
		assert.Equal(t, ReasonBooked, s.Reason)
	}
	for _, d := range days[1:] {
		assert.False(t, d.Available)
	}
}

func TestDays_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Days(morningWeek(t), monday, monday, 30, func(time.Time) ([]schedule.Interval, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}
