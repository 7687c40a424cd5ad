// Package lateness classifies arrivals and departures against a shift's
// resolved boundaries.
package lateness

import "time"

// DefaultTolerance is the grace period used when none is configured
const DefaultTolerance = 5 * time.Minute

// IsArrivalLate reports whether timeIn is later than scheduledStart plus the
// tolerance. Arriving exactly at the tolerance edge is on time.
func IsArrivalLate(scheduledStart, timeIn time.Time, tolerance time.Duration) bool {
	return timeIn.After(scheduledStart.Add(tolerance))
}

// IsDepartureEarly reports whether timeOut is earlier than scheduledEnd minus
// the tolerance. Only call this for a real tap-out: a session still open at
// the end of the shift is never an early departure.
func IsDepartureEarly(scheduledEnd, timeOut time.Time, tolerance time.Duration) bool {
	return timeOut.Before(scheduledEnd.Add(-tolerance))
}

// Classifier holds the configured tolerances
type Classifier struct {
	ArrivalTolerance   time.Duration
	DepartureTolerance time.Duration
}

// ArrivedLate applies IsArrivalLate with the arrival tolerance
func (c Classifier) ArrivedLate(scheduledStart, timeIn time.Time) bool {
	return IsArrivalLate(scheduledStart, timeIn, c.ArrivalTolerance)
}

// LeftEarly applies IsDepartureEarly with the departure tolerance
func (c Classifier) LeftEarly(scheduledEnd, timeOut time.Time) bool {
	return IsDepartureEarly(scheduledEnd, timeOut, c.DepartureTolerance)
}
