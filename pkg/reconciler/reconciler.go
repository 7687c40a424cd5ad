package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/events"
	"github.com/cuemby/shiftkeeper/pkg/lateness"
	"github.com/cuemby/shiftkeeper/pkg/ledger"
	"github.com/cuemby/shiftkeeper/pkg/log"
	"github.com/cuemby/shiftkeeper/pkg/metrics"
	"github.com/cuemby/shiftkeeper/pkg/shifttime"
	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pass names, used as metric labels
const (
	PassStartSweep = "start_sweep"
	PassArrivals   = "arrivals"
	PassClosing    = "closing"
	PassOngoing    = "ongoing"
	PassDeparture  = "departure"
)

const componentName = "reconciler"

// Occurrence anchors are midnight of the calendar date, so an occurrence
// starting or ending at instant t has its anchor no earlier than t minus
// this margin (one day for the date itself, one for midnight wraparound,
// plus slack for DST).
const anchorMargin = 50 * time.Hour

// Clock supplies the reference instant of a tick
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// Store is everything the reconciler reads and writes
type Store interface {
	storage.SessionFeed
	storage.OccurrenceFeed
	storage.Ledger
}

// Config holds the tick period and window sizes
type Config struct {
	Interval           time.Duration
	Lookback           time.Duration
	Lookahead          time.Duration
	CatchUpLookback    time.Duration
	ArrivalTolerance   time.Duration
	DepartureTolerance time.Duration
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Interval:           time.Minute,
		Lookback:           90 * time.Second,
		Lookahead:          30 * time.Second,
		CatchUpLookback:    24 * time.Hour,
		ArrivalTolerance:   lateness.DefaultTolerance,
		DepartureTolerance: lateness.DefaultTolerance,
	}
}

// Summary reports what one tick changed
type Summary struct {
	Now                time.Time     `json:"now"`
	Occurrences        int           `json:"occurrences"`
	ActiveSessions     int           `json:"active_sessions"`
	Created            int64         `json:"created"`
	Updated            int64         `json:"updated"`
	SkippedOccurrences int           `json:"skipped_occurrences"`
	Duration           time.Duration `json:"duration"`
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(r *Reconciler) { r.clock = clock }
}

// WithBroker publishes ledger changes to broker
func WithBroker(broker *events.Broker) Option {
	return func(r *Reconciler) { r.broker = broker }
}

// Reconciler derives attendance rows from staffing sessions and the shift
// roster. Every write it makes is a skip-duplicate insert or a conditional
// update, so ticks can repeat, overlap a missed tick's window, or race a
// tap-out without changing the outcome.
type Reconciler struct {
	store      Store
	ledger     *ledger.Ledger
	resolver   *shifttime.Resolver
	classifier lateness.Classifier
	cfg        Config
	clock      Clock
	broker     *events.Broker
	logger     zerolog.Logger

	tickMu   sync.Mutex
	started  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a new reconciler. Zero durations in cfg fall back to
// DefaultConfig.
func NewReconciler(store Store, resolver *shifttime.Resolver, cfg Config, opts ...Option) *Reconciler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = def.Lookahead
	}
	if cfg.CatchUpLookback <= 0 {
		cfg.CatchUpLookback = def.CatchUpLookback
	}
	if cfg.ArrivalTolerance < 0 {
		cfg.ArrivalTolerance = def.ArrivalTolerance
	}
	if cfg.DepartureTolerance < 0 {
		cfg.DepartureTolerance = def.DepartureTolerance
	}

	r := &Reconciler{
		store:    store,
		ledger:   ledger.New(store),
		resolver: resolver,
		classifier: lateness.Classifier{
			ArrivalTolerance:   cfg.ArrivalTolerance,
			DepartureTolerance: cfg.DepartureTolerance,
		},
		cfg:    cfg,
		clock:  SystemClock{},
		logger: log.WithComponent(componentName),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the reconciliation loop. The first tick runs immediately.
// Calls after the first are no-ops.
func (r *Reconciler) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	metrics.RegisterComponent(metrics.ComponentReconciler, true, "")
	go r.run()
}

// Stop stops the loop and waits for an in-flight tick to finish. It returns
// immediately if Start was never called.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.started.Load() {
		<-r.doneCh
	}
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.tickOnce()
	for {
		select {
		case <-ticker.C:
			r.tickOnce()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reconciler) tickOnce() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Errors are logged and counted inside Tick; the next tick's lookback
	// retries whatever this one missed.
	_, _ = r.Tick(ctx)
}

// Tick runs one reconciliation cycle. Ticks are serialized. The first
// storage error aborts the remaining passes and is returned.
func (r *Reconciler) Tick(ctx context.Context) (*Summary, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	timer := metrics.NewTimer()
	metrics.ReconciliationCyclesTotal.Inc()

	summary, err := r.tick(ctx)
	timer.ObserveDuration(metrics.ReconciliationDuration)
	if err != nil {
		metrics.ReconciliationErrorsTotal.Inc()
		metrics.UpdateComponent(metrics.ComponentReconciler, false, err.Error())
		r.logger.Error().Err(err).Msg("Reconciliation tick failed")
		r.broker.Publish(&events.Event{
			Type:    events.EventTickFailed,
			Message: err.Error(),
		})
		return nil, err
	}

	summary.Duration = timer.Duration()
	metrics.UpdateComponent(metrics.ComponentReconciler, true, "")
	metrics.LastTickTimestamp.Set(float64(summary.Now.Unix()))

	event := r.logger.Debug()
	if summary.Created > 0 || summary.Updated > 0 {
		event = r.logger.Info()
	}
	event.
		Int("occurrences", summary.Occurrences).
		Int("active_sessions", summary.ActiveSessions).
		Int64("created", summary.Created).
		Int64("updated", summary.Updated).
		Int("skipped", summary.SkippedOccurrences).
		Dur("duration", summary.Duration).
		Msg("Reconciliation tick complete")

	return summary, nil
}

// tickState is the snapshot shared by the passes of one tick
type tickState struct {
	now         time.Time
	occurrences []*resolvedOccurrence
	sessions    map[string]*types.Session // earliest active staffing session per user
	created     atomic.Int64
	updated     atomic.Int64
}

type resolvedOccurrence struct {
	*types.ShiftOccurrence
	window shifttime.Window
}

func (r *Reconciler) tick(ctx context.Context) (*Summary, error) {
	st := &tickState{now: r.clock.Now()}

	sessions, err := r.store.ListActiveSessions(ctx, types.SessionTypeStaffing)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	st.sessions = earliestByUser(sessions)

	from := st.now.Add(-r.cfg.CatchUpLookback)
	if lb := st.now.Add(-r.cfg.Lookback); lb.Before(from) {
		from = lb
	}
	occurrences, skipped, err := r.resolveOccurrences(ctx, from, st.now.Add(r.cfg.Lookahead))
	if err != nil {
		return nil, err
	}
	st.occurrences = occurrences

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.timePass(PassStartSweep, func() error { return r.sweepStarts(gctx, st) }) })
	g.Go(func() error { return r.timePass(PassArrivals, func() error { return r.matchArrivals(gctx, st) }) })
	g.Go(func() error { return r.timePass(PassClosing, func() error { return r.closeEnded(gctx, st) }) })
	g.Go(func() error { return r.timePass(PassOngoing, func() error { return r.catchUpOngoing(gctx, st) }) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Summary{
		Now:                st.now,
		Occurrences:        len(st.occurrences),
		ActiveSessions:     len(st.sessions),
		Created:            st.created.Load(),
		Updated:            st.updated.Load(),
		SkippedOccurrences: skipped,
	}, nil
}

func (r *Reconciler) timePass(pass string, fn func() error) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationPassDuration, pass)
	if err := fn(); err != nil {
		return fmt.Errorf("%s pass: %w", pass, err)
	}
	return nil
}

// resolveOccurrences returns the occurrences whose resolved window touches
// [from, to], with schedules looked up once per schedule id. Occurrences
// with a missing or malformed schedule are skipped and counted.
func (r *Reconciler) resolveOccurrences(ctx context.Context, from, to time.Time) ([]*resolvedOccurrence, int, error) {
	occs, err := r.store.ListOccurrences(ctx, from.Add(-anchorMargin), to)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list occurrences: %w", err)
	}

	schedules := make(map[string]*types.ShiftSchedule)
	var resolved []*resolvedOccurrence
	skipped := 0
	for _, occ := range occs {
		sched, ok := schedules[occ.ScheduleID]
		if !ok {
			sched, err = r.store.GetSchedule(ctx, occ.ScheduleID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, 0, fmt.Errorf("failed to get schedule %s: %w", occ.ScheduleID, err)
			}
			schedules[occ.ScheduleID] = sched
		}
		if sched == nil {
			r.skip(occ, "missing_schedule", storage.ErrNotFound)
			skipped++
			continue
		}

		window, err := r.resolver.Resolve(occ, sched)
		if err != nil {
			r.skip(occ, "invalid_schedule", err)
			skipped++
			continue
		}
		if window.End.Before(from) || window.Start.After(to) {
			continue
		}
		resolved = append(resolved, &resolvedOccurrence{ShiftOccurrence: occ, window: window})
	}
	return resolved, skipped, nil
}

func (r *Reconciler) skip(occ *types.ShiftOccurrence, reason string, err error) {
	metrics.OccurrencesSkippedTotal.WithLabelValues(reason).Inc()
	occLog := log.WithOccurrenceID(occ.ID)
	occLog.Warn().
		Err(err).
		Str("component", componentName).
		Str("schedule_id", occ.ScheduleID).
		Str("reason", reason).
		Msg("Skipping occurrence")
}

// sweepStarts is pass 1. Every occurrence that started during the catch-up
// lookback gets an absent row per assigned user, and makeup rows still
// upcoming after the start become absent.
func (r *Reconciler) sweepStarts(ctx context.Context, st *tickState) error {
	from := st.now.Add(-r.cfg.CatchUpLookback)
	started := st.filter(func(o *resolvedOccurrence) bool {
		return !o.window.Start.Before(from) && !o.window.Start.After(st.now)
	})

	for _, occ := range started {
		n, err := r.ledger.EnsureRows(ctx, occ.ID, occ.AssignedUserIDs)
		if err != nil {
			return err
		}
		if n > 0 {
			st.created.Add(int64(n))
			metrics.AttendanceWritesTotal.WithLabelValues(PassStartSweep, ledger.Created.String()).Add(float64(n))
			r.logger.Debug().Str("occurrence_id", occ.ID).Int("created", n).Msg("Created absent rows")
			r.broker.Publish(&events.Event{
				Type:     events.EventAttendanceCreated,
				Message:  fmt.Sprintf("%d absent rows created", n),
				Metadata: map[string]string{"occurrence_id": occ.ID},
			})
		}
	}

	rows, err := r.ledger.Rows(ctx, ids(started)...)
	if err != nil {
		return err
	}
	for _, row := range sortedRows(rows) {
		if row.Status != types.AttendanceStatusUpcoming {
			continue
		}
		out, err := r.ledger.ExpireUpcoming(ctx, row)
		if err != nil {
			return err
		}
		r.record(st, PassStartSweep, out, events.EventAttendanceAbsent, row, types.AttendanceStatusAbsent)
	}
	return nil
}

// matchArrivals is pass 2: occurrences starting inside the tick window
func (r *Reconciler) matchArrivals(ctx context.Context, st *tickState) error {
	from, to := st.now.Add(-r.cfg.Lookback), st.now.Add(r.cfg.Lookahead)
	starting := st.filter(func(o *resolvedOccurrence) bool {
		return !o.window.Start.Before(from) && !o.window.Start.After(to)
	})
	return r.markArrivals(ctx, st, PassArrivals, starting)
}

// catchUpOngoing is pass 4: occurrences in progress right now, which
// catches sessions that began after the start window had passed
func (r *Reconciler) catchUpOngoing(ctx context.Context, st *tickState) error {
	ongoing := st.filter(func(o *resolvedOccurrence) bool {
		return o.window.Contains(st.now)
	})
	return r.markArrivals(ctx, st, PassOngoing, ongoing)
}

func (r *Reconciler) markArrivals(ctx context.Context, st *tickState, pass string, occs []*resolvedOccurrence) error {
	if len(occs) == 0 || len(st.sessions) == 0 {
		return nil
	}

	rows, err := r.ledger.Rows(ctx, ids(occs)...)
	if err != nil {
		return err
	}

	for _, occ := range occs {
		for _, userID := range candidates(occ, rows) {
			session, ok := st.sessions[userID]
			if !ok {
				continue
			}
			key := types.AttendanceKey{ShiftOccurrenceID: occ.ID, UserID: userID}
			if row := rows[key]; row != nil && (row.Status.Dropped() || row.TimeIn != nil || row.TimeOut != nil) {
				continue
			}

			timeIn := session.StartedAt
			if timeIn.Before(occ.window.Start) {
				timeIn = occ.window.Start
			}
			late := r.classifier.ArrivedLate(occ.window.Start, timeIn)

			out, err := r.ledger.MarkPresent(ctx, occ.ID, userID, timeIn, late)
			if err != nil {
				return err
			}
			row := rows[key]
			if row == nil {
				row = &types.ShiftAttendance{ShiftOccurrenceID: occ.ID, UserID: userID}
			}
			r.record(st, pass, out, events.EventAttendancePresent, row, types.AttendanceStatusPresent)
		}
	}
	return nil
}

// closeEnded is pass 3. Present rows of occurrences ending inside the tick
// window are closed at the scheduled end when the user is still tapped in.
// Rows already closed by a real tap-out keep their departure.
func (r *Reconciler) closeEnded(ctx context.Context, st *tickState) error {
	from, to := st.now.Add(-r.cfg.Lookback), st.now.Add(r.cfg.Lookahead)
	ending := st.filter(func(o *resolvedOccurrence) bool {
		return !o.window.End.Before(from) && !o.window.End.After(to)
	})
	if len(ending) == 0 || len(st.sessions) == 0 {
		return nil
	}

	rows, err := r.ledger.Rows(ctx, ids(ending)...)
	if err != nil {
		return err
	}

	ends := make(map[string]time.Time, len(ending))
	for _, occ := range ending {
		ends[occ.ID] = occ.window.End
	}

	for _, row := range sortedRows(rows) {
		if row.Status != types.AttendanceStatusPresent || row.TimeOut != nil {
			continue
		}
		if _, active := st.sessions[row.UserID]; !active {
			continue
		}
		out, err := r.ledger.Close(ctx, row, ends[row.ShiftOccurrenceID])
		if err != nil {
			return err
		}
		if out == ledger.Updated {
			occLog := log.WithOccurrenceID(row.ShiftOccurrenceID)
			occLog.Debug().
				Str("component", componentName).
				Str("user_id", row.UserID).
				Time("time_out", ends[row.ShiftOccurrenceID]).
				Msg("Closed at scheduled end")
		}
		r.record(st, PassClosing, out, events.EventAttendanceClosed, row, row.Status)
	}
	return nil
}

// RecordDeparture closes the present rows of userID for a tap-out at
// endedAt. A row whose occurrence was in progress takes the tap-out as its
// departure. A row whose occurrence ended within the lookback before endedAt
// was still staffed at the scheduled end, so it is closed at that end the
// same way the closing pass would have. It returns the number of rows closed.
func (r *Reconciler) RecordDeparture(ctx context.Context, userID string, endedAt time.Time) (int, error) {
	occs, _, err := r.resolveOccurrences(ctx, endedAt.Add(-r.cfg.Lookback), endedAt)
	if err != nil {
		return 0, err
	}
	var affected []*resolvedOccurrence
	for _, occ := range occs {
		if occ.window.Contains(endedAt) || r.endedBefore(occ, endedAt) {
			affected = append(affected, occ)
		}
	}
	if len(affected) == 0 {
		return 0, nil
	}

	rows, err := r.ledger.Rows(ctx, ids(affected)...)
	if err != nil {
		return 0, err
	}

	logger := log.WithUserID(userID)
	closed := 0
	for _, occ := range affected {
		row := rows[types.AttendanceKey{ShiftOccurrenceID: occ.ID, UserID: userID}]
		if row == nil || row.Status != types.AttendanceStatusPresent || row.TimeOut != nil {
			continue
		}

		var out ledger.Outcome
		timeOut, early := endedAt, false
		if occ.window.Contains(endedAt) {
			early = r.classifier.LeftEarly(occ.window.End, endedAt)
			out, err = r.ledger.RecordDeparture(ctx, row, endedAt, early)
		} else {
			timeOut = occ.window.End
			out, err = r.ledger.Close(ctx, row, timeOut)
		}
		if err != nil {
			return closed, err
		}
		if out == ledger.Updated {
			closed++
			metrics.AttendanceWritesTotal.WithLabelValues(PassDeparture, out.String()).Inc()
			r.broker.Publish(events.NewAttendanceEvent(events.EventAttendanceClosed, row, "tapped out"))
			logger.Info().
				Str("component", componentName).
				Str("attendance_id", row.ID).
				Str("occurrence_id", occ.ID).
				Time("time_out", timeOut).
				Bool("left_early", early).
				Msg("Recorded departure")
		}
	}
	return closed, nil
}

// endedBefore reports whether occ reached its scheduled end no more than one
// lookback before t
func (r *Reconciler) endedBefore(occ *resolvedOccurrence, t time.Time) bool {
	end := occ.window.End
	return !end.After(t) && !end.Before(t.Add(-r.cfg.Lookback))
}

func (r *Reconciler) record(st *tickState, pass string, out ledger.Outcome, eventType events.EventType, row *types.ShiftAttendance, status types.AttendanceStatus) {
	switch out {
	case ledger.Created:
		st.created.Add(1)
	case ledger.Updated:
		st.updated.Add(1)
	default:
		return
	}
	metrics.AttendanceWritesTotal.WithLabelValues(pass, out.String()).Inc()

	r.logger.Debug().
		Str("pass", pass).
		Str("occurrence_id", row.ShiftOccurrenceID).
		Str("user_id", row.UserID).
		Str("outcome", out.String()).
		Msg("Attendance row written")

	changed := *row
	changed.Status = status
	r.broker.Publish(events.NewAttendanceEvent(eventType, &changed, pass))
}

func (st *tickState) filter(keep func(*resolvedOccurrence) bool) []*resolvedOccurrence {
	var out []*resolvedOccurrence
	for _, occ := range st.occurrences {
		if keep(occ) {
			out = append(out, occ)
		}
	}
	return out
}

// candidates returns the assigned users plus any makeup users that already
// have a row for the occurrence
func candidates(occ *resolvedOccurrence, rows map[types.AttendanceKey]*types.ShiftAttendance) []string {
	seen := make(map[string]bool, len(occ.AssignedUserIDs))
	users := make([]string, 0, len(occ.AssignedUserIDs))
	for _, id := range occ.AssignedUserIDs {
		if !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}

	var extra []string
	for key, row := range rows {
		if key.ShiftOccurrenceID == occ.ID && !seen[key.UserID] && !row.Status.Dropped() {
			seen[key.UserID] = true
			extra = append(extra, key.UserID)
		}
	}
	sort.Strings(extra)
	return append(users, extra...)
}

func earliestByUser(sessions []*types.Session) map[string]*types.Session {
	byUser := make(map[string]*types.Session, len(sessions))
	for _, s := range sessions {
		if !s.Active() {
			continue
		}
		if cur, ok := byUser[s.UserID]; !ok || s.StartedAt.Before(cur.StartedAt) {
			byUser[s.UserID] = s
		}
	}
	return byUser
}

func ids(occs []*resolvedOccurrence) []string {
	out := make([]string, len(occs))
	for i, occ := range occs {
		out[i] = occ.ID
	}
	return out
}

func sortedRows(rows map[types.AttendanceKey]*types.ShiftAttendance) []*types.ShiftAttendance {
	out := make([]*types.ShiftAttendance, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShiftOccurrenceID != out[j].ShiftOccurrenceID {
			return out[i].ShiftOccurrenceID < out[j].ShiftOccurrenceID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
