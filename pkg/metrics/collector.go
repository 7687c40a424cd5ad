package metrics

import (
	"context"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/cuemby/shiftkeeper/pkg/types"
)

// CollectInterval is how often the collector refreshes ledger gauges
const CollectInterval = 15 * time.Second

// Source is the part of the store the collector reads from
type Source interface {
	CountAttendancesByStatus(ctx context.Context) (map[types.AttendanceStatus]int, error)
	storage.SessionFeed
}

// Collector periodically refreshes gauges from the ledger and session feed
type Collector struct {
	source Source
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(CollectInterval)
	go func() {
		defer close(c.doneCh)
		defer ticker.Stop()

		// Collect immediately on start
		c.Collect(context.Background())

		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector and waits for it to exit
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// Collect refreshes every gauge once. Read errors leave the previous values.
func (c *Collector) Collect(ctx context.Context) {
	c.collectAttendanceMetrics(ctx)
	c.collectSessionMetrics(ctx)
}

func (c *Collector) collectAttendanceMetrics(ctx context.Context) {
	counts, err := c.source.CountAttendancesByStatus(ctx)
	if err != nil {
		return
	}

	for _, status := range []types.AttendanceStatus{
		types.AttendanceStatusUpcoming,
		types.AttendanceStatusPresent,
		types.AttendanceStatusAbsent,
		types.AttendanceStatusDropped,
		types.AttendanceStatusDroppedMakeup,
	} {
		AttendancesTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectSessionMetrics(ctx context.Context) {
	sessions, err := c.source.ListActiveSessions(ctx, types.SessionTypeStaffing)
	if err != nil {
		return
	}
	ActiveStaffingSessions.Set(float64(len(sessions)))
}
