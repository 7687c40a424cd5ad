// Package ledger holds the attendance status machine. Every write the
// reconciler makes goes through one of the methods here, and each one is
// either a skip-duplicate insert or a conditional update, so repeating any
// of them has no further effect.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/cuemby/shiftkeeper/pkg/types"
)

// Outcome says what a write actually did
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// promotable lists the states a row may be promoted to present from
var promotable = []types.AttendanceStatus{
	types.AttendanceStatusAbsent,
	types.AttendanceStatusUpcoming,
}

// Ledger wraps the attendance store with the status machine transitions
type Ledger struct {
	store storage.Ledger
}

// New creates a ledger on top of store
func New(store storage.Ledger) *Ledger {
	return &Ledger{store: store}
}

// EnsureRows creates an absent row for every user of the occurrence that has
// none yet. It returns the number of rows created.
func (l *Ledger) EnsureRows(ctx context.Context, occurrenceID string, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	rows := make([]*types.ShiftAttendance, 0, len(userIDs))
	for _, userID := range userIDs {
		rows = append(rows, &types.ShiftAttendance{
			ShiftOccurrenceID: occurrenceID,
			UserID:            userID,
			Status:            types.AttendanceStatusAbsent,
		})
	}

	n, err := l.store.CreateAttendances(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("ensure rows for occurrence %s: %w", occurrenceID, err)
	}
	return n, nil
}

// ExpireUpcoming moves an upcoming row to absent if nobody has arrived yet.
// The caller decides that the scheduled start has passed.
func (l *Ledger) ExpireUpcoming(ctx context.Context, row *types.ShiftAttendance) (Outcome, error) {
	if row.Status != types.AttendanceStatusUpcoming {
		return Unchanged, nil
	}

	applied, err := l.store.UpdateAttendance(ctx, row.ID,
		storage.AttendancePatch{Status: storage.StatusPtr(types.AttendanceStatusAbsent)},
		storage.Condition{
			TimeInNull: true,
			StatusIn:   []types.AttendanceStatus{types.AttendanceStatusUpcoming},
		})
	if err != nil {
		return Unchanged, fmt.Errorf("expire upcoming %s: %w", row.Key(), err)
	}
	if !applied {
		return Unchanged, nil
	}
	return Updated, nil
}

// MarkPresent records the first arrival of userID for the occurrence.
//
// A new row is created as present. If a row already exists it is promoted
// only while it is absent or upcoming with neither TimeIn nor TimeOut set;
// rows that already carry an arrival or departure, and dropped rows, are
// left untouched.
func (l *Ledger) MarkPresent(ctx context.Context, occurrenceID, userID string, timeIn time.Time, late bool) (Outcome, error) {
	row := &types.ShiftAttendance{
		ShiftOccurrenceID: occurrenceID,
		UserID:            userID,
		Status:            types.AttendanceStatusPresent,
		TimeIn:            &timeIn,
		DidArriveLate:     late,
	}

	n, err := l.store.CreateAttendances(ctx, []*types.ShiftAttendance{row})
	if err != nil {
		return Unchanged, fmt.Errorf("mark present %s: %w", row.Key(), err)
	}
	if n > 0 {
		return Created, nil
	}

	existing, err := l.find(ctx, occurrenceID, userID)
	if err != nil {
		return Unchanged, err
	}
	if existing == nil {
		return Unchanged, nil
	}

	applied, err := l.store.UpdateAttendance(ctx, existing.ID,
		storage.AttendancePatch{
			Status:        storage.StatusPtr(types.AttendanceStatusPresent),
			TimeIn:        &timeIn,
			DidArriveLate: &late,
		},
		storage.Condition{
			TimeInNull:  true,
			TimeOutNull: true,
			StatusIn:    promotable,
		})
	if err != nil {
		return Unchanged, fmt.Errorf("mark present %s: %w", row.Key(), err)
	}
	if !applied {
		return Unchanged, nil
	}
	return Updated, nil
}

// Close records the scheduled end as the departure of a present row whose
// user was still in the space when the shift ended. Staying until the end
// is never an early departure.
func (l *Ledger) Close(ctx context.Context, row *types.ShiftAttendance, scheduledEnd time.Time) (Outcome, error) {
	return l.close(ctx, row, scheduledEnd, false)
}

// RecordDeparture records a real tap-out as the departure of a present row
func (l *Ledger) RecordDeparture(ctx context.Context, row *types.ShiftAttendance, endedAt time.Time, early bool) (Outcome, error) {
	return l.close(ctx, row, endedAt, early)
}

func (l *Ledger) close(ctx context.Context, row *types.ShiftAttendance, timeOut time.Time, early bool) (Outcome, error) {
	applied, err := l.store.UpdateAttendance(ctx, row.ID,
		storage.AttendancePatch{
			TimeOut:       &timeOut,
			DidLeaveEarly: &early,
		},
		storage.Condition{
			TimeOutNull: true,
			StatusIn:    []types.AttendanceStatus{types.AttendanceStatusPresent},
		})
	if err != nil {
		return Unchanged, fmt.Errorf("close %s: %w", row.Key(), err)
	}
	if !applied {
		return Unchanged, nil
	}
	return Updated, nil
}

// Rows returns the attendance rows of the given occurrences keyed by
// occurrence and user
func (l *Ledger) Rows(ctx context.Context, occurrenceIDs ...string) (map[types.AttendanceKey]*types.ShiftAttendance, error) {
	rows, err := l.store.ListAttendancesByOccurrence(ctx, occurrenceIDs...)
	if err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}
	byKey := make(map[types.AttendanceKey]*types.ShiftAttendance, len(rows))
	for _, row := range rows {
		byKey[row.Key()] = row
	}
	return byKey, nil
}

// CreateUpcoming records a makeup assignment ahead of the shift
func (l *Ledger) CreateUpcoming(ctx context.Context, occurrenceID, userID string) (*types.ShiftAttendance, error) {
	row := &types.ShiftAttendance{
		ShiftOccurrenceID: occurrenceID,
		UserID:            userID,
		Status:            types.AttendanceStatusUpcoming,
		IsMakeup:          true,
	}
	n, err := l.store.CreateAttendances(ctx, []*types.ShiftAttendance{row})
	if err != nil {
		return nil, fmt.Errorf("create makeup %s: %w", row.Key(), err)
	}
	if n == 0 {
		return l.find(ctx, occurrenceID, userID)
	}
	return row, nil
}

func (l *Ledger) find(ctx context.Context, occurrenceID, userID string) (*types.ShiftAttendance, error) {
	rows, err := l.Rows(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	return rows[types.AttendanceKey{ShiftOccurrenceID: occurrenceID, UserID: userID}], nil
}
