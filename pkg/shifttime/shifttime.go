package shifttime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/cuemby/shiftkeeper/pkg/types"
)

// Clock is a wall-clock time of day parsed from an "HH:MM" string
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" string. "24:00" is rejected; use "00:00".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("invalid clock time %q: hour out of range", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid clock time %q: minute out of range", s)
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// Minutes returns minutes since midnight
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Window is a resolved [Start, End) shift interval
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in [Start, End)
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the absolute length of the window
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Resolver maps occurrence dates and schedule clock strings onto instants in
// a fixed location. The zero value resolves in UTC.
type Resolver struct {
	Location *time.Location
}

// NewResolver creates a resolver for the named IANA timezone
func NewResolver(timezone string) (*Resolver, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Resolver{Location: loc}, nil
}

func (r *Resolver) location() *time.Location {
	if r == nil || r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// ResolveStart combines the calendar date of occurrenceDate, as seen in the
// resolver's location, with the schedule's start time.
func (r *Resolver) ResolveStart(occurrenceDate time.Time, startTime string) (time.Time, error) {
	start, err := ParseClock(startTime)
	if err != nil {
		return time.Time{}, err
	}

	loc := r.location()
	y, m, d := occurrenceDate.In(loc).Date()
	return time.Date(y, m, d, start.Hour, start.Minute, 0, 0, loc), nil
}

// ResolveEnd applies endTime on the calendar date of start. When the end
// clock is at or before the start clock the shift crosses midnight and the
// end moves to the next calendar day. Dates are advanced with time.Date so
// the wall-clock end stays correct across DST transitions.
func (r *Resolver) ResolveEnd(start time.Time, startTime, endTime string) (time.Time, error) {
	startClock, err := ParseClock(startTime)
	if err != nil {
		return time.Time{}, err
	}
	endClock, err := ParseClock(endTime)
	if err != nil {
		return time.Time{}, err
	}

	loc := r.location()
	y, m, d := start.In(loc).Date()
	if endClock.Minutes() <= startClock.Minutes() {
		d++
	}
	return time.Date(y, m, d, endClock.Hour, endClock.Minute, 0, 0, loc), nil
}

// Resolve returns the absolute window of an occurrence
func (r *Resolver) Resolve(occ *types.ShiftOccurrence, sched *types.ShiftSchedule) (Window, error) {
	if occ == nil || sched == nil {
		return Window{}, fmt.Errorf("occurrence and schedule are required")
	}

	start, err := r.ResolveStart(occ.Timestamp, sched.StartTime)
	if err != nil {
		return Window{}, fmt.Errorf("schedule %s start: %w", sched.ID, err)
	}
	end, err := r.ResolveEnd(start, sched.StartTime, sched.EndTime)
	if err != nil {
		return Window{}, fmt.Errorf("schedule %s end: %w", sched.ID, err)
	}
	return Window{Start: start, End: end}, nil
}

// DateAnchor returns midnight of t's calendar date in the resolver's
// location, the form occurrence timestamps are stored in.
func (r *Resolver) DateAnchor(t time.Time) time.Time {
	loc := r.location()
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DateLayout is the wire form of occurrence dates
const DateLayout = "2006-01-02"

// ParseDate parses a "YYYY-MM-DD" date as midnight in the resolver's location
func (r *Resolver) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, r.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders an occurrence date anchor as "YYYY-MM-DD"
func (r *Resolver) FormatDate(t time.Time) string {
	return t.In(r.location()).Format(DateLayout)
}
