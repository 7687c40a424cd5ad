/*
Package events is an in-memory broker for ledger change notifications.

The reconciler and the excuse service publish an Event whenever a write
actually changes a row (attendance.created, attendance.present,
attendance.absent, attendance.closed, attendance.excused,
attendance.reviewed) and tick.failed when a tick aborts. Writes that turn out
to be no-ops publish nothing, so subscribers see each transition once even
though ticks repeat.

Delivery is best effort. Publish never blocks: events are dropped when the
100-event queue is full, and a subscriber whose 50-event buffer is full
misses the broadcast. Nothing downstream may depend on events for
correctness; the ledger is the source of truth.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		logger.Info().
			Str("event", string(ev.Type)).
			Str("attendance_id", ev.Metadata["attendance_id"]).
			Msg(ev.Message)
	}
*/
package events
