package shifttime

import (
	"testing"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Clock
		wantErr bool
	}{
		{name: "morning", input: "09:30", want: Clock{Hour: 9, Minute: 30}},
		{name: "midnight", input: "00:00", want: Clock{}},
		{name: "single digit hour", input: "7:05", want: Clock{Hour: 7, Minute: 5}},
		{name: "padded with spaces", input: " 22:00 ", want: Clock{Hour: 22}},
		{name: "hour too large", input: "24:00", wantErr: true},
		{name: "minute too large", input: "10:60", wantErr: true},
		{name: "missing minutes", input: "10", wantErr: true},
		{name: "with seconds", input: "10:00:00", wantErr: true},
		{name: "not a number", input: "ab:cd", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveStart_UsesConfiguredLocation(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	r := &Resolver{Location: loc}

	// Stored as UTC midnight of the same calendar date in New York
	date := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)

	start, err := r.ResolveStart(date, "18:00")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 1, 18, 0, 0, 0, loc), start)
	assert.True(t, start.Equal(time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)))
}

func TestResolveEnd(t *testing.T) {
	loc := mustLoad(t, "Europe/Berlin")
	r := &Resolver{Location: loc}
	start := time.Date(2024, 6, 10, 22, 0, 0, 0, loc)

	tests := []struct {
		name      string
		startTime string
		endTime   string
		want      time.Time
	}{
		{
			name:      "same day",
			startTime: "22:00",
			endTime:   "23:30",
			want:      time.Date(2024, 6, 10, 23, 30, 0, 0, loc),
		},
		{
			name:      "crosses midnight",
			startTime: "22:00",
			endTime:   "02:00",
			want:      time.Date(2024, 6, 11, 2, 0, 0, 0, loc),
		},
		{
			name:      "equal times span a full day",
			startTime: "22:00",
			endTime:   "22:00",
			want:      time.Date(2024, 6, 11, 22, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveEnd(start, tt.startTime, tt.endTime)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestResolveEnd_InvalidClock(t *testing.T) {
	r := &Resolver{}
	_, err := r.ResolveEnd(time.Now(), "22:00", "2am")
	assert.Error(t, err)

	_, err = r.ResolveEnd(time.Now(), "late", "02:00")
	assert.Error(t, err)
}

func TestResolve_DSTSpringForward(t *testing.T) {
	// 2024-03-10 02:00 America/Chicago jumps to 03:00
	loc := mustLoad(t, "America/Chicago")
	r := &Resolver{Location: loc}

	occ := &types.ShiftOccurrence{ID: "occ-1", Timestamp: time.Date(2024, 3, 9, 0, 0, 0, 0, loc)}
	sched := &types.ShiftSchedule{ID: "sched-1", StartTime: "22:00", EndTime: "06:00"}

	w, err := r.Resolve(occ, sched)
	require.NoError(t, err)

	assert.Equal(t, 22, w.Start.Hour())
	assert.Equal(t, 6, w.End.In(loc).Hour())
	assert.Equal(t, 10, w.End.In(loc).Day())
	// Wall clock says 8h, one hour is skipped by the transition
	assert.Equal(t, 7*time.Hour, w.Duration())
}

func TestResolve_DSTFallBack(t *testing.T) {
	loc := mustLoad(t, "America/Chicago")
	r := &Resolver{Location: loc}

	occ := &types.ShiftOccurrence{ID: "occ-1", Timestamp: time.Date(2024, 11, 2, 0, 0, 0, 0, loc)}
	sched := &types.ShiftSchedule{ID: "sched-1", StartTime: "22:00", EndTime: "06:00"}

	w, err := r.Resolve(occ, sched)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour, w.Duration())
}

func TestResolve_RequiresSchedule(t *testing.T) {
	r := &Resolver{}
	_, err := r.Resolve(&types.ShiftOccurrence{ID: "occ-1"}, nil)
	assert.Error(t, err)
}

func TestWindowContains(t *testing.T) {
	start := time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(4 * time.Hour)}

	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(start.Add(3*time.Hour)))
	assert.False(t, w.Contains(start.Add(4*time.Hour)))
	assert.False(t, w.Contains(start.Add(-time.Second)))
}

func TestNewResolver(t *testing.T) {
	r, err := NewResolver("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", r.Location.String())

	_, err = NewResolver("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestDateAnchor(t *testing.T) {
	loc := mustLoad(t, "Asia/Tokyo")
	r := &Resolver{Location: loc}

	// 2024-05-01 20:00 UTC is 2024-05-02 05:00 in Tokyo
	got := r.DateAnchor(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, loc), got)
}

func TestParseDate(t *testing.T) {
	loc := mustLoad(t, "America/Chicago")
	r := &Resolver{Location: loc}

	got, err := r.ParseDate("2024-03-10")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 10, 0, 0, 0, 0, loc).Equal(got))
	assert.Equal(t, "2024-03-10", r.FormatDate(got))
	assert.True(t, got.Equal(r.DateAnchor(got)))

	for _, bad := range []string{"", "2024-3-10", "10/03/2024", "2024-02-30"} {
		_, err := r.ParseDate(bad)
		assert.Error(t, err, bad)
	}

	var utc *Resolver
	got, err = utc.ParseDate("2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
}
