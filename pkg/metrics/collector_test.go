package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	counts   map[types.AttendanceStatus]int
	sessions []*types.Session
	err      error
}

func (f *fakeSource) CountAttendancesByStatus(ctx context.Context) (map[types.AttendanceStatus]int, error) {
	return f.counts, f.err
}

func (f *fakeSource) ListActiveSessions(ctx context.Context, sessionType types.SessionType) ([]*types.Session, error) {
	return f.sessions, f.err
}

func TestCollectorCollect(t *testing.T) {
	source := &fakeSource{
		counts: map[types.AttendanceStatus]int{
			types.AttendanceStatusPresent: 4,
			types.AttendanceStatusAbsent:  2,
		},
		sessions: []*types.Session{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}},
	}

	NewCollector(source).Collect(context.Background())

	if got := testutil.ToFloat64(AttendancesTotal.WithLabelValues("present")); got != 4 {
		t.Errorf("expected 4 present, got %v", got)
	}
	if got := testutil.ToFloat64(AttendancesTotal.WithLabelValues("absent")); got != 2 {
		t.Errorf("expected 2 absent, got %v", got)
	}
	if got := testutil.ToFloat64(AttendancesTotal.WithLabelValues("upcoming")); got != 0 {
		t.Errorf("expected 0 upcoming, got %v", got)
	}
	if got := testutil.ToFloat64(ActiveStaffingSessions); got != 3 {
		t.Errorf("expected 3 active sessions, got %v", got)
	}

	// A failing read keeps the last values
	source.err = errors.New("closed")
	NewCollector(source).Collect(context.Background())
	if got := testutil.ToFloat64(ActiveStaffingSessions); got != 3 {
		t.Errorf("expected gauge to keep 3, got %v", got)
	}
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(&fakeSource{})
	c.Start()
	c.Stop()
}
