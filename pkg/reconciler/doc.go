/*
Package reconciler derives the attendance ledger from staffing sessions and
the shift roster.

A Reconciler runs one tick per interval (default one minute). Each tick reads
the active staffing sessions and every occurrence whose resolved window
touches [now - catch-up lookback, now + lookahead], then runs four passes
concurrently:

	pass          occurrences selected              writes
	start_sweep   start in [now-24h, now]           absent rows for assigned users,
	                                                upcoming makeups -> absent
	arrivals      start in [now-90s, now+30s]       present, TimeIn = max(session start, start)
	closing       end in [now-90s, now+30s]         TimeOut = scheduled end for present rows
	                                                whose user is still tapped in
	ongoing       start <= now < end                same as arrivals, for mid-shift joins

The passes never coordinate. They are safe to interleave because every write
is either an insert that skips existing (occurrence, user) pairs or an update
guarded by a condition the store checks atomically:

	MarkPresent      TimeIn null, TimeOut null, status in {absent, upcoming}
	ExpireUpcoming   TimeIn null, status upcoming
	Close            TimeOut null, status present

A row that already has a TimeIn keeps its first arrival, a row that already
has a TimeOut keeps its departure, and dropped rows are never written.

# Windows

Occurrence windows are resolved by shifttime.Resolver in the configured
timezone; an end at or before the start rolls over to the next day. A user
whose session is still open when the shift ends is closed at the scheduled
end with DidLeaveEarly false. Only RecordDeparture, driven by a real tap-out,
can set DidLeaveEarly.

# Failures

A storage error aborts the tick: the remaining passes are cancelled, the
error is returned from Tick, logged, counted in
shiftkeeper_reconciliation_errors_total and the reconciler health component
turns unhealthy until the next successful tick. Nothing is rolled back; the
next tick's lookback retries what was missed. Occurrences whose schedule is
missing or has malformed clock strings are skipped with a warning and counted
in shiftkeeper_occurrences_skipped_total.

# Usage

	rec := reconciler.NewReconciler(store, resolver, reconciler.Config{
		Interval:         time.Minute,
		ArrivalTolerance: 5 * time.Minute,
	}, reconciler.WithBroker(broker))
	rec.Start()
	defer rec.Stop()

	// Tap-out from the access system
	closed, err := rec.RecordDeparture(ctx, userID, endedAt)

Tests drive ticks directly with WithClock and Tick instead of waiting on the
ticker.
*/
package reconciler
