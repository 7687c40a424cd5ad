package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// sqlTimeLayout is fixed width so stored instants sort lexically
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on SQLite.
//
// Creates use INSERT ... ON CONFLICT DO NOTHING against the unique
// (shift_occurrence_id, user_id) constraint and conditional updates are a
// single UPDATE ... WHERE statement, so both stay correct when more than one
// process writes to the same database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Schedule operations

func (s *SQLiteStore) PutSchedule(ctx context.Context, schedule *types.ShiftSchedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shift_schedules (id, name, day_of_week, start_time, end_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			day_of_week = excluded.day_of_week,
			start_time = excluded.start_time,
			end_time = excluded.end_time
	`, schedule.ID, schedule.Name, int(schedule.DayOfWeek), schedule.StartTime, schedule.EndTime)
	if err != nil {
		return fmt.Errorf("put schedule: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSchedule(ctx context.Context, id string) (*types.ShiftSchedule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, day_of_week, start_time, end_time
		FROM shift_schedules WHERE id = ?
	`, id)

	var schedule types.ShiftSchedule
	var day int
	err := row.Scan(&schedule.ID, &schedule.Name, &day, &schedule.StartTime, &schedule.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	schedule.DayOfWeek = time.Weekday(day)
	return &schedule, nil
}

func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]*types.ShiftSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, day_of_week, start_time, end_time
		FROM shift_schedules ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*types.ShiftSchedule
	for rows.Next() {
		var schedule types.ShiftSchedule
		var day int
		if err := rows.Scan(&schedule.ID, &schedule.Name, &day, &schedule.StartTime, &schedule.EndTime); err != nil {
			return nil, fmt.Errorf("list schedules: %w", err)
		}
		schedule.DayOfWeek = time.Weekday(day)
		schedules = append(schedules, &schedule)
	}
	return schedules, rows.Err()
}

// Occurrence operations

func (s *SQLiteStore) PutOccurrence(ctx context.Context, occurrence *types.ShiftOccurrence) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put occurrence: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shift_occurrences (id, schedule_id, occurs_on)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schedule_id = excluded.schedule_id,
			occurs_on = excluded.occurs_on
	`, occurrence.ID, occurrence.ScheduleID, formatTime(occurrence.Timestamp))
	if err != nil {
		return fmt.Errorf("put occurrence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM shift_assignees WHERE shift_occurrence_id = ?`, occurrence.ID); err != nil {
		return fmt.Errorf("put occurrence assignees: %w", err)
	}
	for i, userID := range occurrence.AssignedUserIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO shift_assignees (shift_occurrence_id, user_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, occurrence.ID, userID, i)
		if err != nil {
			return fmt.Errorf("put occurrence assignees: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListOccurrences(ctx context.Context, from, to time.Time) ([]*types.ShiftOccurrence, error) {
	query := `SELECT id, schedule_id, occurs_on FROM shift_occurrences WHERE 1 = 1`
	var args []interface{}
	if !from.IsZero() {
		query += ` AND occurs_on >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += ` AND occurs_on <= ?`
		args = append(args, formatTime(to))
	}
	query += ` ORDER BY occurs_on, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}

	var occurrences []*types.ShiftOccurrence
	byID := make(map[string]*types.ShiftOccurrence)
	for rows.Next() {
		var occurrence types.ShiftOccurrence
		var occursOn string
		if err := rows.Scan(&occurrence.ID, &occurrence.ScheduleID, &occursOn); err != nil {
			rows.Close()
			return nil, fmt.Errorf("list occurrences: %w", err)
		}
		if occurrence.Timestamp, err = parseTime(occursOn); err != nil {
			rows.Close()
			return nil, fmt.Errorf("occurrence %s timestamp: %w", occurrence.ID, err)
		}
		occurrences = append(occurrences, &occurrence)
		byID[occurrence.ID] = &occurrence
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(occurrences) == 0 {
		return nil, nil
	}

	// Single connection: the first result set must be closed before this query
	ids := make([]interface{}, 0, len(occurrences))
	for _, occurrence := range occurrences {
		ids = append(ids, occurrence.ID)
	}
	assignees, err := s.db.QueryContext(ctx, `
		SELECT shift_occurrence_id, user_id FROM shift_assignees
		WHERE shift_occurrence_id IN (`+placeholders(len(ids))+`)
		ORDER BY shift_occurrence_id, position
	`, ids...)
	if err != nil {
		return nil, fmt.Errorf("list occurrence assignees: %w", err)
	}
	defer assignees.Close()

	for assignees.Next() {
		var occurrenceID, userID string
		if err := assignees.Scan(&occurrenceID, &userID); err != nil {
			return nil, fmt.Errorf("list occurrence assignees: %w", err)
		}
		if occurrence, ok := byID[occurrenceID]; ok {
			occurrence.AssignedUserIDs = append(occurrence.AssignedUserIDs, userID)
		}
	}
	return occurrences, assignees.Err()
}

// Session operations

func (s *SQLiteStore) PutSession(ctx context.Context, session *types.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, session_type, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			session_type = excluded.session_type,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`, session.ID, session.UserID, string(session.Type), formatTime(session.StartedAt), formatNullTime(session.EndedAt))
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

const sessionColumns = `id, user_id, session_type, started_at, ended_at`

func scanSession(scan func(dest ...interface{}) error) (*types.Session, error) {
	var session types.Session
	var sessionType, startedAt string
	var endedAt sql.NullString
	if err := scan(&session.ID, &session.UserID, &sessionType, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	session.Type = types.SessionType(sessionType)

	var err error
	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("session %s started_at: %w", session.ID, err)
	}
	if session.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, fmt.Errorf("session %s ended_at: %w", session.ID, err)
	}
	return &session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// EndSession closes an active session with a conditional update
func (s *SQLiteStore) EndSession(ctx context.Context, id string, endedAt time.Time) (*types.Session, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL
	`, formatTime(endedAt), id)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionEnded)
	}
	return session, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at, id`)
}

func (s *SQLiteStore) ListActiveSessions(ctx context.Context, sessionType types.SessionType) ([]*types.Session, error) {
	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE ended_at IS NULL AND session_type = ?
		ORDER BY started_at, id
	`, string(sessionType))
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...interface{}) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Attendance operations

const attendanceColumns = `id, shift_occurrence_id, user_id, status, time_in, time_out,
	did_arrive_late, did_leave_early, is_makeup, is_excused, excuse_notes,
	excused_by_id, excused_at, reviewed_by_id, reviewed_at, created_at, updated_at`

func scanAttendance(scan func(dest ...interface{}) error) (*types.ShiftAttendance, error) {
	var row types.ShiftAttendance
	var status, createdAt, updatedAt string
	var timeIn, timeOut, excusedAt, reviewedAt sql.NullString
	var late, early, makeup, excused int

	err := scan(&row.ID, &row.ShiftOccurrenceID, &row.UserID, &status, &timeIn, &timeOut,
		&late, &early, &makeup, &excused, &row.ExcuseNotes,
		&row.ExcusedByID, &excusedAt, &row.ReviewedByID, &reviewedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	row.Status = types.AttendanceStatus(status)
	row.DidArriveLate = late != 0
	row.DidLeaveEarly = early != 0
	row.IsMakeup = makeup != 0
	row.IsExcused = excused != 0

	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&row.TimeIn, timeIn},
		{&row.TimeOut, timeOut},
		{&row.ExcusedAt, excusedAt},
		{&row.ReviewedAt, reviewedAt},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, fmt.Errorf("attendance %s: %w", row.ID, err)
		}
	}
	if row.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("attendance %s created_at: %w", row.ID, err)
	}
	if row.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("attendance %s updated_at: %w", row.ID, err)
	}
	return &row, nil
}

// CreateAttendances inserts rows in one transaction. Conflicts on the id or
// on (shift_occurrence_id, user_id) are skipped.
func (s *SQLiteStore) CreateAttendances(ctx context.Context, rows []*types.ShiftAttendance) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("create attendances: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO shift_attendances (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("create attendances: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	inserted := 0
	for _, row := range rows {
		id := row.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := row.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		res, err := stmt.ExecContext(ctx,
			id, row.ShiftOccurrenceID, row.UserID, string(row.Status),
			formatNullTime(row.TimeIn), formatNullTime(row.TimeOut),
			boolToInt(row.DidArriveLate), boolToInt(row.DidLeaveEarly), boolToInt(row.IsMakeup),
			boolToInt(row.IsExcused), row.ExcuseNotes, row.ExcusedByID, formatNullTime(row.ExcusedAt),
			row.ReviewedByID, formatNullTime(row.ReviewedAt),
			formatTime(createdAt), formatTime(createdAt),
		)
		if err != nil {
			return 0, fmt.Errorf("create attendance %s: %w", row.Key(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("create attendance %s: %w", row.Key(), err)
		}
		if n > 0 {
			row.ID = id
			row.CreatedAt = createdAt
			row.UpdatedAt = createdAt
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("create attendances: %w", err)
	}
	return inserted, nil
}

// UpdateAttendance renders patch and cond as one UPDATE statement
func (s *SQLiteStore) UpdateAttendance(ctx context.Context, id string, patch AttendancePatch, cond Condition) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{formatTime(s.now())}

	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.TimeIn != nil {
		set("time_in", formatTime(*patch.TimeIn))
	}
	if patch.TimeOut != nil {
		set("time_out", formatTime(*patch.TimeOut))
	}
	if patch.DidArriveLate != nil {
		set("did_arrive_late", boolToInt(*patch.DidArriveLate))
	}
	if patch.DidLeaveEarly != nil {
		set("did_leave_early", boolToInt(*patch.DidLeaveEarly))
	}
	if patch.IsExcused != nil {
		set("is_excused", boolToInt(*patch.IsExcused))
	}
	if patch.ExcuseNotes != nil {
		set("excuse_notes", *patch.ExcuseNotes)
	}
	if patch.ExcusedByID != nil {
		set("excused_by_id", *patch.ExcusedByID)
	}
	if patch.ExcusedAt != nil {
		set("excused_at", formatTime(*patch.ExcusedAt))
	}
	if patch.ReviewedByID != nil {
		set("reviewed_by_id", *patch.ReviewedByID)
	}
	if patch.ReviewedAt != nil {
		set("reviewed_at", formatTime(*patch.ReviewedAt))
	}

	where := []string{"id = ?"}
	args = append(args, id)
	if cond.TimeInNull {
		where = append(where, "time_in IS NULL")
	}
	if cond.TimeOutNull {
		where = append(where, "time_out IS NULL")
	}
	if len(cond.StatusIn) > 0 {
		where = append(where, "status IN ("+placeholders(len(cond.StatusIn))+")")
		for _, st := range cond.StatusIn {
			args = append(args, string(st))
		}
	}
	if len(cond.StatusNotIn) > 0 {
		where = append(where, "status NOT IN ("+placeholders(len(cond.StatusNotIn))+")")
		for _, st := range cond.StatusNotIn {
			args = append(args, string(st))
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE shift_attendances SET `+strings.Join(sets, ", ")+` WHERE `+strings.Join(where, " AND "),
		args...)
	if err != nil {
		return false, fmt.Errorf("update attendance %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update attendance %s: %w", id, err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM shift_attendances WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("attendance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("update attendance %s: %w", id, err)
	}
	return false, nil
}

func (s *SQLiteStore) GetAttendance(ctx context.Context, id string) (*types.ShiftAttendance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM shift_attendances WHERE id = ?`, id)
	attendance, err := scanAttendance(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attendance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return attendance, nil
}

func (s *SQLiteStore) ListAttendancesByOccurrence(ctx context.Context, occurrenceIDs ...string) ([]*types.ShiftAttendance, error) {
	if len(occurrenceIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(occurrenceIDs))
	for i, id := range occurrenceIDs {
		args[i] = id
	}
	return s.queryAttendances(ctx, `
		SELECT `+attendanceColumns+` FROM shift_attendances
		WHERE shift_occurrence_id IN (`+placeholders(len(args))+`)
		ORDER BY shift_occurrence_id, user_id
	`, args...)
}

func (s *SQLiteStore) ListAttendancesByUser(ctx context.Context, userID string) ([]*types.ShiftAttendance, error) {
	return s.queryAttendances(ctx, `
		SELECT `+attendanceColumns+` FROM shift_attendances
		WHERE user_id = ? ORDER BY created_at, id
	`, userID)
}

func (s *SQLiteStore) ListAttendances(ctx context.Context) ([]*types.ShiftAttendance, error) {
	return s.queryAttendances(ctx, `
		SELECT `+attendanceColumns+` FROM shift_attendances ORDER BY created_at, id
	`)
}

func (s *SQLiteStore) CountAttendancesByStatus(ctx context.Context) (map[types.AttendanceStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM shift_attendances GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count attendances: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.AttendanceStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count attendances: %w", err)
		}
		counts[types.AttendanceStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) queryAttendances(ctx context.Context, query string, args ...interface{}) ([]*types.ShiftAttendance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}
	defer rows.Close()

	var attendances []*types.ShiftAttendance
	for rows.Next() {
		attendance, err := scanAttendance(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list attendances: %w", err)
		}
		attendances = append(attendances, attendance)
	}
	return attendances, rows.Err()
}
