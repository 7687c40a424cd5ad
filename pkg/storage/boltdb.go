package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketSchedules      = []byte("schedules")
	bucketOccurrences    = []byte("occurrences")
	bucketSessions       = []byte("sessions")
	bucketAttendances    = []byte("attendances")
	bucketAttendanceKeys = []byte("attendance_keys") // occurrence|user -> attendance id
)

// BoltDBFile is the database file name inside the data directory
const BoltDBFile = "shiftkeeper.db"

// BoltStore implements Store interface using BoltDB.
//
// Every write runs in a single bolt read-write transaction. Bolt allows one
// writer at a time, so the "check condition, then write" sequence inside
// UpdateAttendance is atomic and the attendance_keys bucket acts as the
// unique index on (occurrence, user).
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, BoltDBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketSchedules,
			bucketOccurrences,
			bucketSessions,
			bucketAttendances,
			bucketAttendanceKeys,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func attendanceKey(occurrenceID, userID string) []byte {
	return []byte(occurrenceID + "|" + userID)
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// Schedule operations
func (s *BoltStore) PutSchedule(_ context.Context, schedule *types.ShiftSchedule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketSchedules), schedule.ID, schedule)
	})
}

func (s *BoltStore) GetSchedule(_ context.Context, id string) (*types.ShiftSchedule, error) {
	var schedule types.ShiftSchedule
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSchedules).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &schedule)
	})
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *BoltStore) ListSchedules(_ context.Context) ([]*types.ShiftSchedule, error) {
	var schedules []*types.ShiftSchedule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchedules).ForEach(func(k, v []byte) error {
			var schedule types.ShiftSchedule
			if err := json.Unmarshal(v, &schedule); err != nil {
				return err
			}
			schedules = append(schedules, &schedule)
			return nil
		})
	})
	return schedules, err
}

// Occurrence operations
func (s *BoltStore) PutOccurrence(_ context.Context, occurrence *types.ShiftOccurrence) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketOccurrences), occurrence.ID, occurrence)
	})
}

func (s *BoltStore) ListOccurrences(_ context.Context, from, to time.Time) ([]*types.ShiftOccurrence, error) {
	var occurrences []*types.ShiftOccurrence
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOccurrences).ForEach(func(k, v []byte) error {
			var occurrence types.ShiftOccurrence
			if err := json.Unmarshal(v, &occurrence); err != nil {
				return err
			}
			if inRange(occurrence.Timestamp, from, to) {
				occurrences = append(occurrences, &occurrence)
			}
			return nil
		})
	})
	return occurrences, err
}

// Session operations
func (s *BoltStore) PutSession(_ context.Context, session *types.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketSessions), session.ID, session)
	})
}

func (s *BoltStore) GetSession(_ context.Context, id string) (*types.Session, error) {
	var session types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession closes an active session. It fails with ErrSessionEnded if the
// session was already closed.
func (s *BoltStore) EndSession(_ context.Context, id string, endedAt time.Time) (*types.Session, error) {
	var session types.Session
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		if !session.Active() {
			return fmt.Errorf("session %s: %w", id, ErrSessionEnded)
		}
		session.EndedAt = &endedAt
		return putJSON(b, id, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BoltStore) ListSessions(_ context.Context) ([]*types.Session, error) {
	return s.listSessions(func(*types.Session) bool { return true })
}

func (s *BoltStore) ListActiveSessions(_ context.Context, sessionType types.SessionType) ([]*types.Session, error) {
	return s.listSessions(func(session *types.Session) bool {
		return session.Active() && session.Type == sessionType
	})
}

func (s *BoltStore) listSessions(keep func(*types.Session) bool) ([]*types.Session, error) {
	var sessions []*types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			var session types.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			if keep(&session) {
				sessions = append(sessions, &session)
			}
			return nil
		})
	})
	return sessions, err
}

// Attendance operations

// CreateAttendances inserts rows in one transaction, skipping any whose
// (occurrence, user) pair already has a row.
func (s *BoltStore) CreateAttendances(_ context.Context, rows []*types.ShiftAttendance) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttendances)
		keys := tx.Bucket(bucketAttendanceKeys)
		now := s.now().UTC()

		for _, row := range rows {
			key := attendanceKey(row.ShiftOccurrenceID, row.UserID)
			if keys.Get(key) != nil {
				continue
			}
			if row.ID == "" {
				row.ID = uuid.New().String()
			}
			if b.Get([]byte(row.ID)) != nil {
				continue
			}
			if row.CreatedAt.IsZero() {
				row.CreatedAt = now
			}
			row.UpdatedAt = row.CreatedAt

			if err := putJSON(b, row.ID, row); err != nil {
				return fmt.Errorf("failed to write attendance %s: %w", row.Key(), err)
			}
			if err := keys.Put(key, []byte(row.ID)); err != nil {
				return fmt.Errorf("failed to index attendance %s: %w", row.Key(), err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpdateAttendance evaluates cond and applies patch inside one write
// transaction.
func (s *BoltStore) UpdateAttendance(_ context.Context, id string, patch AttendancePatch, cond Condition) (bool, error) {
	applied := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttendances)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("attendance %s: %w", id, ErrNotFound)
		}

		var row types.ShiftAttendance
		if err := json.Unmarshal(data, &row); err != nil {
			return err
		}
		if !cond.Matches(&row) {
			return nil
		}

		patch.Apply(&row)
		row.UpdatedAt = s.now().UTC()
		if err := putJSON(b, id, &row); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *BoltStore) GetAttendance(_ context.Context, id string) (*types.ShiftAttendance, error) {
	var row types.ShiftAttendance
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAttendances).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("attendance %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &row)
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListAttendancesByOccurrence prefix-scans the key index for each occurrence
func (s *BoltStore) ListAttendancesByOccurrence(_ context.Context, occurrenceIDs ...string) ([]*types.ShiftAttendance, error) {
	var rows []*types.ShiftAttendance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttendances)
		c := tx.Bucket(bucketAttendanceKeys).Cursor()

		for _, occurrenceID := range occurrenceIDs {
			prefix := []byte(occurrenceID + "|")
			for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
				data := b.Get(id)
				if data == nil {
					continue
				}
				var row types.ShiftAttendance
				if err := json.Unmarshal(data, &row); err != nil {
					return err
				}
				rows = append(rows, &row)
			}
		}
		return nil
	})
	return rows, err
}

func (s *BoltStore) ListAttendancesByUser(_ context.Context, userID string) ([]*types.ShiftAttendance, error) {
	return s.listAttendances(func(row *types.ShiftAttendance) bool {
		return row.UserID == userID
	})
}

func (s *BoltStore) ListAttendances(_ context.Context) ([]*types.ShiftAttendance, error) {
	return s.listAttendances(func(*types.ShiftAttendance) bool { return true })
}

func (s *BoltStore) CountAttendancesByStatus(_ context.Context) (map[types.AttendanceStatus]int, error) {
	rows, err := s.listAttendances(func(*types.ShiftAttendance) bool { return true })
	if err != nil {
		return nil, err
	}
	counts := make(map[types.AttendanceStatus]int)
	for _, row := range rows {
		counts[row.Status]++
	}
	return counts, nil
}

func (s *BoltStore) listAttendances(keep func(*types.ShiftAttendance) bool) ([]*types.ShiftAttendance, error) {
	var rows []*types.ShiftAttendance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAttendances).ForEach(func(k, v []byte) error {
			var row types.ShiftAttendance
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if keep(&row) {
				rows = append(rows, &row)
			}
			return nil
		})
	})
	return rows, err
}
