package timing

import "time"

// Clock converts wall-clock instants into a fixed-width tick count relative to
// a start instant. The count wraps at 2^32 ticks; Scheduler.Advance tolerates
// that as long as polls are far more frequent than one wraparound.
type Clock struct {
	start time.Time
	unit  time.Duration
}

// NewClock creates a Clock counting ticks of the given unit from start.
// A non-positive unit falls back to one millisecond.
func NewClock(start time.Time, unit time.Duration) Clock {
	if unit <= 0 {
		unit = time.Millisecond
	}
	return Clock{start: start, unit: unit}
}

// Ticks returns the tick count at t, truncated to 32 bits.
func (c Clock) Ticks(t time.Time) uint32 {
	return uint32(int64(t.Sub(c.start) / c.unit))
}

// Unit returns the duration of one tick.
func (c Clock) Unit() time.Duration {
	return c.unit
}
