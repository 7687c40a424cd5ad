// Package excuse records administrator excuses and reviews on attendance
// rows. It writes only the excuse and review fields, never the fields the
// reconciler owns, so the two can run at any time without conflicting.
package excuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/events"
	"github.com/cuemby/shiftkeeper/pkg/log"
	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/cuemby/shiftkeeper/pkg/types"
)

var (
	// ErrShiftNotOccurred is returned for rows still waiting for their shift
	ErrShiftNotOccurred = errors.New("shift has not occurred yet")

	// ErrActorRequired is returned when no administrator id is given
	ErrActorRequired = errors.New("acting user id is required")
)

// notOccurred guards every write: the store rejects upcoming rows atomically
var notOccurred = storage.Condition{
	StatusNotIn: []types.AttendanceStatus{types.AttendanceStatusUpcoming},
}

// Service applies excuse and review decisions. Concurrent decisions on the
// same row are last-write-wins.
type Service struct {
	store  storage.Ledger
	broker *events.Broker
	now    func() time.Time
}

// NewService creates an excuse service. broker may be nil.
func NewService(store storage.Ledger, broker *events.Broker) *Service {
	return &Service{store: store, broker: broker, now: time.Now}
}

// Excuse sets or clears the excuse on a row and records who decided and when
func (s *Service) Excuse(ctx context.Context, id, excusedBy, notes string, excused bool) (*types.ShiftAttendance, error) {
	if excusedBy == "" {
		return nil, ErrActorRequired
	}

	now := s.now()
	row, err := s.apply(ctx, id, storage.AttendancePatch{
		IsExcused:   &excused,
		ExcuseNotes: &notes,
		ExcusedByID: &excusedBy,
		ExcusedAt:   &now,
	})
	if err != nil {
		return nil, err
	}

	attLog := log.WithAttendanceID(id)
	attLog.Info().
		Str("excused_by", excusedBy).
		Bool("excused", excused).
		Msg("Attendance excuse updated")
	s.broker.Publish(events.NewAttendanceEvent(events.EventAttendanceExcused, row, notes))
	return row, nil
}

// Review marks a row as reviewed by reviewedBy
func (s *Service) Review(ctx context.Context, id, reviewedBy string) (*types.ShiftAttendance, error) {
	if reviewedBy == "" {
		return nil, ErrActorRequired
	}

	now := s.now()
	row, err := s.apply(ctx, id, storage.AttendancePatch{
		ReviewedByID: &reviewedBy,
		ReviewedAt:   &now,
	})
	if err != nil {
		return nil, err
	}

	attLog := log.WithAttendanceID(id)
	attLog.Info().
		Str("reviewed_by", reviewedBy).
		Msg("Attendance reviewed")
	s.broker.Publish(events.NewAttendanceEvent(events.EventAttendanceReviewed, row, ""))
	return row, nil
}

func (s *Service) apply(ctx context.Context, id string, patch storage.AttendancePatch) (*types.ShiftAttendance, error) {
	applied, err := s.store.UpdateAttendance(ctx, id, patch, notOccurred)
	if err != nil {
		return nil, err
	}
	if !applied {
		// The only condition is "not upcoming"
		return nil, fmt.Errorf("attendance %s: %w", id, ErrShiftNotOccurred)
	}
	return s.store.GetAttendance(ctx, id)
}
