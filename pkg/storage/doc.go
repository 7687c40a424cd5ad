/*
Package storage persists shiftkeeper state: the shift roster, staffing
sessions and the attendance ledger.

Two backends implement Store. BoltStore is the default and keeps everything in
a single bbolt file; SQLiteStore uses mattn/go-sqlite3 and suits
installations that want to query the ledger with SQL tooling. Both pass the
same contract tests in store_test.go.

# Architecture

	┌──────────────── reconciler / api / excuse ────────────────┐
	│                                                             │
	│   SessionFeed      OccurrenceFeed          Ledger           │
	│   (read)           (read)                  (write)          │
	└──────┬─────────────────┬──────────────────────┬────────────┘
	       │                 │                      │
	┌──────▼─────────────────▼──────────────────────▼────────────┐
	│                     storage.Store                           │
	│                                                             │
	│   BoltStore: <dataDir>/shiftkeeper.db                      │
	│   SQLiteStore: <dataDir>/shiftkeeper.sqlite                │
	└─────────────────────────────────────────────────────────────┘

The reconciler depends only on the three narrow interfaces; the full Store
adds the roster and session writes used by the API and the migration tool.

# Idempotent writes

The ledger has two write operations and both are safe to repeat:

  - CreateAttendances inserts rows whose (occurrence, user) pair is new and
    silently skips the rest. Bolt enforces the pair through the
    attendance_keys bucket; SQLite through a UNIQUE constraint with
    ON CONFLICT DO NOTHING.
  - UpdateAttendance applies an AttendancePatch only if the stored row
    satisfies a Condition (TimeIn null, TimeOut null, status in or not in a
    set). Bolt evaluates the condition and writes inside one db.Update;
    SQLite renders both into a single UPDATE ... WHERE.

Neither backend reads a row, decides in Go and writes it back in a separate
transaction, so two reconcilers sharing a SQLite file cannot overwrite each
other's arrivals or departures.

# Bolt layout

	schedules        id -> ShiftSchedule JSON
	occurrences      id -> ShiftOccurrence JSON
	sessions         id -> Session JSON
	attendances      id -> ShiftAttendance JSON
	attendance_keys  "<occurrence>|<user>" -> attendance id

Listing by occurrence seeks the attendance_keys prefix, so it never scans the
whole ledger.

# SQLite layout

schema.sql is embedded and applied on open. Instants are stored as
fixed-width UTC text so range filters compare lexically. The connection pool
is limited to one connection since SQLite allows one writer.

# Usage

	store, err := storage.NewBoltStore("/var/lib/shiftkeeper")
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.CreateAttendances(ctx, rows)
	applied, err := store.UpdateAttendance(ctx, id,
		storage.AttendancePatch{TimeOut: &end},
		storage.Condition{TimeOutNull: true})
*/
package storage
