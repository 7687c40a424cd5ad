package types

import (
	"time"
)

// SessionType distinguishes plain visits from staffing sessions
type SessionType string

const (
	SessionTypeRegular  SessionType = "regular"
	SessionTypeStaffing SessionType = "staffing"
)

// Session is a tap-in/tap-out interval recorded by the access system
type Session struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Type      SessionType `json:"type"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// Active reports whether the session has not been tapped out yet
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// ShiftSchedule is a recurring weekly shift template.
// StartTime and EndTime are wall-clock "HH:MM" strings in the system timezone.
// An EndTime at or before StartTime means the shift crosses midnight.
type ShiftSchedule struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	DayOfWeek time.Weekday `json:"day_of_week" yaml:"dayOfWeek"`
	StartTime string       `json:"start_time" yaml:"startTime"`
	EndTime   string       `json:"end_time" yaml:"endTime"`
}

// ShiftOccurrence is one dated instance of a ShiftSchedule
type ShiftOccurrence struct {
	ID              string    `json:"id"`
	ScheduleID      string    `json:"schedule_id"`
	Timestamp       time.Time `json:"timestamp"` // date anchor
	AssignedUserIDs []string  `json:"assigned_user_ids"`
}

// IsAssigned reports whether userID is on the occurrence roster
func (o *ShiftOccurrence) IsAssigned(userID string) bool {
	for _, id := range o.AssignedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AttendanceStatus is the state of a ShiftAttendance row
type AttendanceStatus string

const (
	AttendanceStatusUpcoming      AttendanceStatus = "upcoming"
	AttendanceStatusPresent       AttendanceStatus = "present"
	AttendanceStatusAbsent        AttendanceStatus = "absent"
	AttendanceStatusDropped       AttendanceStatus = "dropped"
	AttendanceStatusDroppedMakeup AttendanceStatus = "dropped_makeup"
)

// Valid reports whether s is a known status
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusUpcoming, AttendanceStatusPresent, AttendanceStatusAbsent,
		AttendanceStatusDropped, AttendanceStatusDroppedMakeup:
		return true
	}
	return false
}

// Dropped reports whether the row was released by the drop/makeup workflow.
// Dropped rows are terminal for reconciliation.
func (s AttendanceStatus) Dropped() bool {
	return s == AttendanceStatusDropped || s == AttendanceStatusDroppedMakeup
}

// ShiftAttendance is the ledger row for one (occurrence, user) pair.
//
// Status, TimeIn, TimeOut, DidArriveLate and DidLeaveEarly are owned by the
// reconciler. The excuse and review fields are owned by the excuse workflow.
type ShiftAttendance struct {
	ID                string           `json:"id"`
	ShiftOccurrenceID string           `json:"shift_occurrence_id"`
	UserID            string           `json:"user_id"`
	Status            AttendanceStatus `json:"status"`
	TimeIn            *time.Time       `json:"time_in,omitempty"`
	TimeOut           *time.Time       `json:"time_out,omitempty"`
	DidArriveLate     bool             `json:"did_arrive_late"`
	DidLeaveEarly     bool             `json:"did_leave_early"`
	IsMakeup          bool             `json:"is_makeup"`

	IsExcused    bool       `json:"is_excused"`
	ExcuseNotes  string     `json:"excuse_notes,omitempty"`
	ExcusedByID  string     `json:"excused_by_id,omitempty"`
	ExcusedAt    *time.Time `json:"excused_at,omitempty"`
	ReviewedByID string     `json:"reviewed_by_id,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Finished reports whether the row has been closed with a departure time
func (a *ShiftAttendance) Finished() bool {
	return a.TimeOut != nil
}

// AttendanceKey identifies the unique (occurrence, user) pair of a row
type AttendanceKey struct {
	ShiftOccurrenceID string
	UserID            string
}

// Key returns the uniqueness key of the row
func (a *ShiftAttendance) Key() AttendanceKey {
	return AttendanceKey{ShiftOccurrenceID: a.ShiftOccurrenceID, UserID: a.UserID}
}

// String renders the key as "occurrence/user"
func (k AttendanceKey) String() string {
	return k.ShiftOccurrenceID + "/" + k.UserID
}
