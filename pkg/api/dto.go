package api

import (
	"time"

	"github.com/cuemby/shiftkeeper/pkg/types"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// OccurrenceDTO carries an occurrence with its date as "YYYY-MM-DD" in the
// configured timezone
type OccurrenceDTO struct {
	ID              string   `json:"id"`
	ScheduleID      string   `json:"schedule_id"`
	Date            string   `json:"date"`
	AssignedUserIDs []string `json:"assigned_user_ids"`
}

// StartSessionRequest records a tap-in. StartedAt defaults to now and Type
// to staffing.
type StartSessionRequest struct {
	ID        string            `json:"id,omitempty"`
	UserID    string            `json:"user_id"`
	Type      types.SessionType `json:"type,omitempty"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
}

// EndSessionRequest records a tap-out. EndedAt defaults to now.
type EndSessionRequest struct {
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// EndSessionResponse reports the closed session and how many attendance
// rows took the tap-out as their departure
type EndSessionResponse struct {
	Session           *types.Session `json:"session"`
	ClosedAttendances int            `json:"closed_attendances"`
}

// MakeupRequest assigns a user to an occurrence as a makeup shift
type MakeupRequest struct {
	ShiftOccurrenceID string `json:"shift_occurrence_id"`
	UserID            string `json:"user_id"`
}

// ExcuseRequest sets or clears an excuse. Excused defaults to true.
type ExcuseRequest struct {
	ExcusedBy string `json:"excused_by"`
	Notes     string `json:"notes"`
	Excused   *bool  `json:"excused,omitempty"`
}

// ReviewRequest marks a row as reviewed
type ReviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
}

// PutResponse reports how many records an upsert stored
type PutResponse struct {
	Stored int `json:"stored"`
}
