/*
Package types defines the core data structures used throughout shiftkeeper.

The types fall into two groups:

Inputs (read-only to the reconciler):
  - Session: a tap-in/tap-out interval; only staffing sessions count
  - ShiftSchedule: weekly template with "HH:MM" start and end times
  - ShiftOccurrence: one dated instance of a schedule with its roster

Ledger:
  - ShiftAttendance: one row per (occurrence, user) pair
  - AttendanceStatus: upcoming, absent, present, dropped, dropped_makeup

# Attendance Lifecycle

	        makeup assigned          start passed, no time in
	  ──────────────▶ upcoming ─────────────────────────────▶ absent
	                     │                                      │
	                     │        active staffing session       │
	                     └────────────────┬─────────────────────┘
	                                      ▼
	                                   present ──▶ (TimeOut set = finished)

	  dropped / dropped_makeup: set by the drop workflow, never touched again

Status never moves from present back to absent. Completion is not a status:
a row is finished once TimeOut is non-nil.

Field ownership:
  - Reconciler: Status, TimeIn, TimeOut, DidArriveLate, DidLeaveEarly
  - Excuse workflow: IsExcused, ExcuseNotes, ExcusedByID, ExcusedAt,
    ReviewedByID, ReviewedAt

All types are JSON-serializable. The bbolt store persists them as JSON values;
the SQLite store maps them onto columns.

# See Also

  - pkg/storage for persistence and conditional writes
  - pkg/ledger for the status machine write paths
*/
package types
