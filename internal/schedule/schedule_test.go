package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "9:30", want: 570},
		{in: "00:00", want: 0},
		{in: "24:00", want: MinutesPerDay},
		{in: "10:15:00", want: 615},
		{in: "10:15:30", wantErr: true},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseClock(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidClock)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClockString(t *testing.T) {
	assert.Equal(t, "09:05", NewClock(9, 5).String())
	assert.Equal(t, "12:30", NewClock(11, 30).Add(60).String())
}

func TestIntervalOverlaps(t *testing.T) {
	existing := Interval{Start: NewClock(10, 0), End: NewClock(10, 30)}

	tests := []struct {
		name string
		in   Interval
		want bool
	}{
		{"back to back before", Interval{NewClock(9, 30), NewClock(10, 0)}, false},
		{"back to back after", Interval{NewClock(10, 30), NewClock(11, 0)}, false},
		{"one minute into start", Interval{NewClock(9, 31), NewClock(10, 1)}, true},
		{"one minute before end", Interval{NewClock(10, 29), NewClock(10, 59)}, true},
		{"identical", existing, true},
		{"containing", Interval{NewClock(9, 0), NewClock(12, 0)}, true},
		{"contained", Interval{NewClock(10, 10), NewClock(10, 20)}, true},
		{"far away", Interval{NewClock(14, 0), NewClock(15, 0)}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Overlaps(existing))
			assert.Equal(t, tc.want, existing.Overlaps(tc.in), "overlap must be symmetric")
		})
	}
}

func TestWeeklyScheduleDay(t *testing.T) {
	w := WeeklySchedule{
		"monday": {Open: NewClock(9, 0), Close: NewClock(17, 0)},
		"sunday": {Open: NewClock(9, 0), Close: NewClock(12, 0), Closed: true},
		"friday": {Open: NewClock(12, 0), Close: NewClock(12, 0)},
	}

	day, ok := w.Day(time.Monday)
	require.True(t, ok)
	assert.Equal(t, Interval{NewClock(9, 0), NewClock(17, 0)}, day.Window())

	_, ok = w.Day(time.Sunday)
	assert.False(t, ok, "closed day")

	_, ok = w.Day(time.Tuesday)
	assert.False(t, ok, "missing day")

	_, ok = w.Day(time.Friday)
	assert.False(t, ok, "empty window")
}

func TestWeeklyScheduleJSON(t *testing.T) {
	raw := `{
		"monday": {"open": "09:00", "close": "12:00", "closed": false},
		"saturday": {"open": "", "close": "", "closed": true}
	}`

	var w WeeklySchedule
	require.NoError(t, json.Unmarshal([]byte(raw), &w))
	require.NoError(t, w.Validate())

	assert.Equal(t, NewClock(9, 0), w["monday"].Open)
	assert.True(t, w["saturday"].Closed)

	out, err := json.Marshal(w["monday"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"open":"09:00","close":"12:00","closed":false}`, string(out))
}

func TestWeeklyScheduleValidate(t *testing.T) {
	bad := WeeklySchedule{"monday": {Open: NewClock(12, 0), Close: NewClock(9, 0)}}
	require.ErrorIs(t, bad.Validate(), ErrInvalidDayHours)

	unknown := WeeklySchedule{"funday": {Open: NewClock(9, 0), Close: NewClock(12, 0)}}
	require.ErrorIs(t, unknown.Validate(), ErrUnknownWeekday)

	var w WeeklySchedule
	err := json.Unmarshal([]byte(`{"monday": {"open": "nine", "close": "12:00"}}`), &w)
	require.ErrorIs(t, err, ErrInvalidClock)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, "2026-10-19", FormatDate(d))

	_, err = ParseDate("19/10/2026")
	require.ErrorIs(t, err, ErrInvalidDate)

	loc := time.FixedZone("UTC-5", -5*3600)
	late := time.Date(2026, 10, 18, 23, 30, 0, 0, loc)
	assert.Equal(t, "2026-10-18", FormatDate(DateOf(late)))

	at := At(d, NewClock(9, 30), loc)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, 30, at.Minute())
	assert.Equal(t, loc, at.Location())
}
