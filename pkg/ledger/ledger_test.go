package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) (*Ledger, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func getRow(t *testing.T, l *Ledger, occurrenceID, userID string) *types.ShiftAttendance {
	t.Helper()
	rows, err := l.Rows(context.Background(), occurrenceID)
	require.NoError(t, err)
	row := rows[types.AttendanceKey{ShiftOccurrenceID: occurrenceID, UserID: userID}]
	require.NotNil(t, row, "no row for %s/%s", occurrenceID, userID)
	return row
}

func TestEnsureRows(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	n, err := l.EnsureRows(ctx, "occ-1", []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.EnsureRows(ctx, "occ-1", []string{"alice", "bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	row := getRow(t, l, "occ-1", "carol")
	assert.Equal(t, types.AttendanceStatusAbsent, row.Status)
	assert.Nil(t, row.TimeIn)
	assert.Nil(t, row.TimeOut)

	n, err = l.EnsureRows(ctx, "occ-1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkPresent(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)
	later := first.Add(20 * time.Minute)

	t.Run("creates present row", func(t *testing.T) {
		l, _ := newLedger(t)
		out, err := l.MarkPresent(ctx, "occ-1", "alice", first, false)
		require.NoError(t, err)
		assert.Equal(t, Created, out)

		row := getRow(t, l, "occ-1", "alice")
		assert.Equal(t, types.AttendanceStatusPresent, row.Status)
		assert.True(t, first.Equal(*row.TimeIn))
	})

	t.Run("promotes absent row", func(t *testing.T) {
		l, _ := newLedger(t)
		_, err := l.EnsureRows(ctx, "occ-1", []string{"alice"})
		require.NoError(t, err)

		out, err := l.MarkPresent(ctx, "occ-1", "alice", later, true)
		require.NoError(t, err)
		assert.Equal(t, Updated, out)

		row := getRow(t, l, "occ-1", "alice")
		assert.Equal(t, types.AttendanceStatusPresent, row.Status)
		assert.True(t, row.DidArriveLate)
	})

	t.Run("keeps first arrival", func(t *testing.T) {
		l, _ := newLedger(t)
		_, err := l.MarkPresent(ctx, "occ-1", "alice", first, false)
		require.NoError(t, err)

		out, err := l.MarkPresent(ctx, "occ-1", "alice", later, true)
		require.NoError(t, err)
		assert.Equal(t, Unchanged, out)

		row := getRow(t, l, "occ-1", "alice")
		assert.True(t, first.Equal(*row.TimeIn))
		assert.False(t, row.DidArriveLate)
	})

	t.Run("skips dropped row", func(t *testing.T) {
		l, store := newLedger(t)
		_, err := store.CreateAttendances(ctx, []*types.ShiftAttendance{{
			ShiftOccurrenceID: "occ-1", UserID: "alice", Status: types.AttendanceStatusDroppedMakeup,
		}})
		require.NoError(t, err)

		out, err := l.MarkPresent(ctx, "occ-1", "alice", first, false)
		require.NoError(t, err)
		assert.Equal(t, Unchanged, out)
		assert.Equal(t, types.AttendanceStatusDroppedMakeup, getRow(t, l, "occ-1", "alice").Status)
	})

	t.Run("skips closed row without arrival", func(t *testing.T) {
		l, store := newLedger(t)
		closed := first.Add(time.Hour)
		_, err := store.CreateAttendances(ctx, []*types.ShiftAttendance{{
			ShiftOccurrenceID: "occ-1", UserID: "alice", Status: types.AttendanceStatusAbsent, TimeOut: &closed,
		}})
		require.NoError(t, err)

		out, err := l.MarkPresent(ctx, "occ-1", "alice", first, false)
		require.NoError(t, err)
		assert.Equal(t, Unchanged, out)
	})
}

func TestExpireUpcoming(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	row, err := l.CreateUpcoming(ctx, "occ-1", "alice")
	require.NoError(t, err)
	assert.True(t, row.IsMakeup)
	assert.Equal(t, types.AttendanceStatusUpcoming, row.Status)

	// Creating the same makeup again returns the existing row
	again, err := l.CreateUpcoming(ctx, "occ-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)

	out, err := l.ExpireUpcoming(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	expired := getRow(t, l, "occ-1", "alice")
	assert.Equal(t, types.AttendanceStatusAbsent, expired.Status)
	assert.True(t, expired.IsMakeup)

	// Stale copy still says upcoming; the stored condition rejects it
	out, err = l.ExpireUpcoming(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)

	out, err = l.ExpireUpcoming(ctx, expired)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
}

func TestExpireUpcoming_WithArrival(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	row, err := l.CreateUpcoming(ctx, "occ-1", "alice")
	require.NoError(t, err)

	arrival := time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)
	out, err := l.MarkPresent(ctx, "occ-1", "alice", arrival, false)
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	out, err = l.ExpireUpcoming(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Equal(t, types.AttendanceStatusPresent, getRow(t, l, "occ-1", "alice").Status)
}

func TestClose(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	arrival := time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)
	tapOut := arrival.Add(2 * time.Hour)
	end := arrival.Add(4 * time.Hour)

	_, err := l.MarkPresent(ctx, "occ-1", "alice", arrival, false)
	require.NoError(t, err)
	row := getRow(t, l, "occ-1", "alice")

	out, err := l.RecordDeparture(ctx, row, tapOut, true)
	require.NoError(t, err)
	assert.Equal(t, Updated, out)

	// The closing pass must not overwrite a real tap-out
	out, err = l.Close(ctx, row, end)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)

	row = getRow(t, l, "occ-1", "alice")
	assert.True(t, tapOut.Equal(*row.TimeOut))
	assert.True(t, row.DidLeaveEarly)
	assert.Equal(t, types.AttendanceStatusPresent, row.Status)
}

func TestClose_SkipsAbsent(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.EnsureRows(ctx, "occ-1", []string{"alice"})
	require.NoError(t, err)
	row := getRow(t, l, "occ-1", "alice")

	out, err := l.Close(ctx, row, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Unchanged, out)
	assert.Nil(t, getRow(t, l, "occ-1", "alice").TimeOut)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "unchanged", Unchanged.String())
}
