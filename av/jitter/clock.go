package jitter

import "time"

// PlayoutClock is the cursor holding the next scheduled play time of one
// peer's audio output.
type PlayoutClock struct {
	next       time.Time
	lead       time.Duration
	maxLatency time.Duration
}

// NewPlayoutClock creates a clock that never schedules closer to now
// than lead and never runs further ahead than maxLatency.
func NewPlayoutClock(lead, maxLatency time.Duration) *PlayoutClock {
	return &PlayoutClock{lead: lead, maxLatency: maxLatency}
}

// Schedule reserves d of output and returns its start time. reset is
// true when the clock had run more than maxLatency ahead of now and was
// pulled back to now + lead first; the caller must discard audio queued
// before the reset.
func (c *PlayoutClock) Schedule(now time.Time, d time.Duration) (start time.Time, reset bool) {
	if !c.next.IsZero() && c.next.After(now.Add(c.maxLatency)) {
		c.next = now.Add(c.lead)
		reset = true
	}

	start = c.next
	if earliest := now.Add(c.lead); start.Before(earliest) {
		start = earliest
	}
	c.next = start.Add(d)
	return start, reset
}

// Next returns the next scheduled play time, zero before any frame.
func (c *PlayoutClock) Next() time.Time { return c.next }

// Queued returns how much scheduled audio is still ahead of now.
func (c *PlayoutClock) Queued(now time.Time) time.Duration {
	if c.next.IsZero() || !c.next.After(now) {
		return 0
	}
	return c.next.Sub(now)
}

// SetLimits updates lead and maxLatency for subsequent frames.
func (c *PlayoutClock) SetLimits(lead, maxLatency time.Duration) {
	c.lead = lead
	c.maxLatency = maxLatency
}

// Reset forgets the scheduled position.
func (c *PlayoutClock) Reset() {
	c.next = time.Time{}
}
