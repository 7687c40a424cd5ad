package excuse

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachStore(t *testing.T, fn func(t *testing.T, store storage.Store)) {
	t.Run("bolt", func(t *testing.T) {
		store, err := storage.NewBoltStore(t.TempDir())
		require.NoError(t, err)
		defer store.Close()
		fn(t, store)
	})
	t.Run("sqlite", func(t *testing.T) {
		store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "shiftkeeper.sqlite"))
		require.NoError(t, err)
		defer store.Close()
		fn(t, store)
	})
}

func createRow(t *testing.T, store storage.Store, row *types.ShiftAttendance) *types.ShiftAttendance {
	t.Helper()
	n, err := store.CreateAttendances(context.Background(), []*types.ShiftAttendance{row})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return row
}

func TestExcuse(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		timeIn := time.Date(2024, 6, 10, 18, 12, 0, 0, time.UTC)
		timeOut := time.Date(2024, 6, 10, 21, 0, 0, 0, time.UTC)
		row := createRow(t, store, &types.ShiftAttendance{
			ShiftOccurrenceID: "occ-1", UserID: "alice",
			Status: types.AttendanceStatusPresent, TimeIn: &timeIn, TimeOut: &timeOut,
			DidArriveLate: true, DidLeaveEarly: true,
		})

		decided := time.Date(2024, 6, 11, 9, 0, 0, 0, time.UTC)
		svc := NewService(store, nil)
		svc.now = func() time.Time { return decided }

		got, err := svc.Excuse(ctx, row.ID, "admin-1", "bus was late", true)
		require.NoError(t, err)
		assert.True(t, got.IsExcused)
		assert.Equal(t, "bus was late", got.ExcuseNotes)
		assert.Equal(t, "admin-1", got.ExcusedByID)
		require.NotNil(t, got.ExcusedAt)
		assert.True(t, decided.Equal(*got.ExcusedAt))

		// Reconciler-owned fields are untouched
		assert.Equal(t, types.AttendanceStatusPresent, got.Status)
		assert.True(t, timeIn.Equal(*got.TimeIn))
		assert.True(t, timeOut.Equal(*got.TimeOut))
		assert.True(t, got.DidArriveLate)
		assert.True(t, got.DidLeaveEarly)
		assert.Nil(t, got.ReviewedAt)
	})
}

func TestExcuse_LastWriteWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		row := createRow(t, store, &types.ShiftAttendance{
			ShiftOccurrenceID: "occ-1", UserID: "bob", Status: types.AttendanceStatusAbsent,
		})
		svc := NewService(store, nil)

		_, err := svc.Excuse(ctx, row.ID, "admin-1", "sick", true)
		require.NoError(t, err)
		got, err := svc.Excuse(ctx, row.ID, "admin-2", "not actually sick", false)
		require.NoError(t, err)

		assert.False(t, got.IsExcused)
		assert.Equal(t, "not actually sick", got.ExcuseNotes)
		assert.Equal(t, "admin-2", got.ExcusedByID)
		assert.Equal(t, types.AttendanceStatusAbsent, got.Status)
		assert.Nil(t, got.TimeIn)
		assert.Nil(t, got.TimeOut)
	})
}

func TestReview(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		row := createRow(t, store, &types.ShiftAttendance{
			ShiftOccurrenceID: "occ-1", UserID: "bob", Status: types.AttendanceStatusAbsent,
			IsExcused: true, ExcuseNotes: "sick",
		})

		got, err := NewService(store, nil).Review(ctx, row.ID, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, "admin-1", got.ReviewedByID)
		assert.NotNil(t, got.ReviewedAt)
		assert.True(t, got.IsExcused)
		assert.Equal(t, "sick", got.ExcuseNotes)
		assert.Equal(t, types.AttendanceStatusAbsent, got.Status)
	})
}

func TestRejectsUpcoming(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		row := createRow(t, store, &types.ShiftAttendance{
			ShiftOccurrenceID: "occ-1", UserID: "carol",
			Status: types.AttendanceStatusUpcoming, IsMakeup: true,
		})
		svc := NewService(store, nil)

		_, err := svc.Excuse(ctx, row.ID, "admin-1", "early excuse", true)
		assert.ErrorIs(t, err, ErrShiftNotOccurred)

		_, err = svc.Review(ctx, row.ID, "admin-1")
		assert.ErrorIs(t, err, ErrShiftNotOccurred)

		stored, err := store.GetAttendance(ctx, row.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsExcused)
		assert.Empty(t, stored.ExcuseNotes)
		assert.Nil(t, stored.ReviewedAt)
	})
}

func TestErrors(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		svc := NewService(store, nil)

		_, err := svc.Excuse(ctx, "missing", "admin-1", "", true)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = svc.Review(ctx, "missing", "admin-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = svc.Excuse(ctx, "missing", "", "", true)
		assert.ErrorIs(t, err, ErrActorRequired)

		_, err = svc.Review(ctx, "missing", "")
		assert.ErrorIs(t, err, ErrActorRequired)
	})
}
