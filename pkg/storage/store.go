package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrSessionEnded is returned when ending a session that is already closed
	ErrSessionEnded = errors.New("session already ended")
)

// SessionFeed is the read side of the access-control session log
type SessionFeed interface {
	ListActiveSessions(ctx context.Context, sessionType types.SessionType) ([]*types.Session, error)
}

// OccurrenceFeed is the read side of the shift roster.
// ListOccurrences filters on the stored date anchor; a zero bound is open.
type OccurrenceFeed interface {
	ListOccurrences(ctx context.Context, from, to time.Time) ([]*types.ShiftOccurrence, error)
	GetSchedule(ctx context.Context, id string) (*types.ShiftSchedule, error)
}

// Ledger persists ShiftAttendance rows.
//
// CreateAttendances inserts rows whose (occurrence, user) pair is not yet
// present and silently skips the rest, returning how many were inserted.
// UpdateAttendance applies patch only if the stored row satisfies cond,
// evaluated atomically with the write. It returns ErrNotFound for an unknown
// id and (false, nil) when the condition does not hold.
type Ledger interface {
	CreateAttendances(ctx context.Context, rows []*types.ShiftAttendance) (int, error)
	UpdateAttendance(ctx context.Context, id string, patch AttendancePatch, cond Condition) (bool, error)
	GetAttendance(ctx context.Context, id string) (*types.ShiftAttendance, error)
	ListAttendancesByOccurrence(ctx context.Context, occurrenceIDs ...string) ([]*types.ShiftAttendance, error)
	ListAttendancesByUser(ctx context.Context, userID string) ([]*types.ShiftAttendance, error)
	CountAttendancesByStatus(ctx context.Context) (map[types.AttendanceStatus]int, error)
}

// Store defines the interface for shiftkeeper state storage
type Store interface {
	SessionFeed
	OccurrenceFeed
	Ledger

	// Schedules
	PutSchedule(ctx context.Context, schedule *types.ShiftSchedule) error
	ListSchedules(ctx context.Context) ([]*types.ShiftSchedule, error)

	// Occurrences
	PutOccurrence(ctx context.Context, occurrence *types.ShiftOccurrence) error

	// Sessions
	PutSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	EndSession(ctx context.Context, id string, endedAt time.Time) (*types.Session, error)
	ListSessions(ctx context.Context) ([]*types.Session, error)

	// Attendances
	ListAttendances(ctx context.Context) ([]*types.ShiftAttendance, error)

	// Utility
	Close() error
}

// AttendancePatch lists the fields to overwrite; nil fields are left alone
type AttendancePatch struct {
	Status        *types.AttendanceStatus
	TimeIn        *time.Time
	TimeOut       *time.Time
	DidArriveLate *bool
	DidLeaveEarly *bool

	IsExcused    *bool
	ExcuseNotes  *string
	ExcusedByID  *string
	ExcusedAt    *time.Time
	ReviewedByID *string
	ReviewedAt   *time.Time
}

// Apply copies the set fields of p onto a
func (p AttendancePatch) Apply(a *types.ShiftAttendance) {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.TimeIn != nil {
		t := *p.TimeIn
		a.TimeIn = &t
	}
	if p.TimeOut != nil {
		t := *p.TimeOut
		a.TimeOut = &t
	}
	if p.DidArriveLate != nil {
		a.DidArriveLate = *p.DidArriveLate
	}
	if p.DidLeaveEarly != nil {
		a.DidLeaveEarly = *p.DidLeaveEarly
	}
	if p.IsExcused != nil {
		a.IsExcused = *p.IsExcused
	}
	if p.ExcuseNotes != nil {
		a.ExcuseNotes = *p.ExcuseNotes
	}
	if p.ExcusedByID != nil {
		a.ExcusedByID = *p.ExcusedByID
	}
	if p.ExcusedAt != nil {
		t := *p.ExcusedAt
		a.ExcusedAt = &t
	}
	if p.ReviewedByID != nil {
		a.ReviewedByID = *p.ReviewedByID
	}
	if p.ReviewedAt != nil {
		t := *p.ReviewedAt
		a.ReviewedAt = &t
	}
}

// Empty reports whether the patch sets no field
func (p AttendancePatch) Empty() bool {
	return p == AttendancePatch{}
}

// Condition is the precondition of a conditional update. The zero value
// always matches.
type Condition struct {
	TimeInNull  bool
	TimeOutNull bool
	StatusIn    []types.AttendanceStatus
	StatusNotIn []types.AttendanceStatus
}

// Matches reports whether a satisfies the condition
func (c Condition) Matches(a *types.ShiftAttendance) bool {
	if c.TimeInNull && a.TimeIn != nil {
		return false
	}
	if c.TimeOutNull && a.TimeOut != nil {
		return false
	}
	if len(c.StatusIn) > 0 && !containsStatus(c.StatusIn, a.Status) {
		return false
	}
	if containsStatus(c.StatusNotIn, a.Status) {
		return false
	}
	return true
}

func containsStatus(list []types.AttendanceStatus, s types.AttendanceStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// StatusPtr, TimePtr, BoolPtr and StringPtr build patch fields inline
func StatusPtr(s types.AttendanceStatus) *types.AttendanceStatus { return &s }
func TimePtr(t time.Time) *time.Time { return &t }
func BoolPtr(b bool) *bool { return &b }
func StringPtr(s string) *string { return &s }

// inRange reports whether t lies in [from, to]; zero bounds are open
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
