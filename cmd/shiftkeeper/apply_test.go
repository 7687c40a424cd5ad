package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/api"
	"github.com/cuemby/shiftkeeper/pkg/client"
	"github.com/cuemby/shiftkeeper/pkg/reconciler"
	"github.com/cuemby/shiftkeeper/pkg/shifttime"
	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoster = `
schedules:
  - id: mon-evening
    name: Monday evening
    dayOfWeek: 1
    startTime: "18:00"
    endTime: "22:00"
occurrences:
  - id: mon-evening-2024-06-10
    scheduleId: mon-evening
    date: "2024-06-10"
    assignedUserIds: [alice, bob]
makeups:
  - occurrenceId: mon-evening-2024-06-10
    userId: carol
`

func TestParseRoster(t *testing.T) {
	roster, err := parseRoster([]byte(testRoster))
	require.NoError(t, err)

	require.Len(t, roster.Schedules, 1)
	assert.Equal(t, time.Monday, roster.Schedules[0].DayOfWeek)
	assert.Equal(t, "18:00", roster.Schedules[0].StartTime)

	dtos := roster.occurrenceDTOs()
	require.Len(t, dtos, 1)
	assert.Equal(t, "2024-06-10", dtos[0].Date)
	assert.Equal(t, []string{"alice", "bob"}, dtos[0].AssignedUserIDs)

	require.Len(t, roster.Makeups, 1)
	assert.Equal(t, "carol", roster.Makeups[0].UserID)
}

func TestParseRoster_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not yaml", data: "schedules: [\n"},
		{name: "makeup without user", data: "makeups:\n  - occurrenceId: occ-1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRoster([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestApplyRoster(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver := &shifttime.Resolver{}
	rec := reconciler.NewReconciler(store, resolver, reconciler.Config{})
	srv := httptest.NewServer(api.NewServer(store, rec, resolver, nil, api.Options{}).Handler())
	t.Cleanup(srv.Close)

	c, err := client.NewClient(srv.URL)
	require.NoError(t, err)

	roster, err := parseRoster([]byte(testRoster))
	require.NoError(t, err)
	require.NoError(t, applyRoster(c, roster))
	// Applying twice is harmless
	require.NoError(t, applyRoster(c, roster))

	ctx := context.Background()
	schedules, err := store.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, schedules, 1)

	occs, err := store.ListOccurrences(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.True(t, occs[0].Timestamp.Equal(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))

	rows, err := store.ListAttendancesByUser(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.AttendanceStatusUpcoming, rows[0].Status)
	assert.True(t, rows[0].IsMakeup)
}
