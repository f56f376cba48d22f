package realtime

import "time"

// Interval is a fixed-period schedule. A zero Every disables it.
// Last is the time the work last ran; a zero Last means it is due now.
type Interval struct {
	Every time.Duration
	Last  time.Time
}

// Enabled reports whether the schedule has a period.
func (i *Interval) Enabled() bool {
	return i.Every > 0
}

// NextWake returns when the work is next due, and whether the schedule is active.
func (i *Interval) NextWake(now time.Time) (time.Time, bool) {
	if !i.Enabled() {
		return time.Time{}, false
	}
	if i.Last.IsZero() {
		return now, true
	}
	next := i.Last.Add(i.Every)
	if next.Before(now) {
		return now, true
	}
	return next, true
}

// Due reports whether the work should run at now.
func (i *Interval) Due(now time.Time) bool {
	if !i.Enabled() {
		return false
	}
	return i.Last.IsZero() || !now.Before(i.Last.Add(i.Every))
}

// Mark records that the work ran at now.
func (i *Interval) Mark(now time.Time) {
	i.Last = now
}

// Reset clears the last run so the work is due immediately.
func (i *Interval) Reset() {
	i.Last = time.Time{}
}

// Earliest returns the earliest of the given times, ignoring zero values.
// It returns fallback when all are zero.
func Earliest(fallback time.Time, times ...time.Time) time.Time {
	out := time.Time{}
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		if out.IsZero() || t.Before(out) {
			out = t
		}
	}
	if out.IsZero() {
		return fallback
	}
	return out
}
