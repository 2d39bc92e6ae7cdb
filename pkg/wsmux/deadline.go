package wsmux

import (
	"time"
)

// Deadline is a per-stage expiry. It is a value: each stage derives a fresh
// one with Refresh and passes it explicitly to the I/O it bounds.
type Deadline struct {
	timeout time.Duration
	at      time.Time
}

// NewDeadline starts a deadline that expires timeout from now. A zero or
// negative timeout never expires.
func NewDeadline(timeout time.Duration) Deadline {
	d := Deadline{timeout: timeout}
	if timeout > 0 {
		d.at = time.Now().Add(timeout)
	}
	return d
}

// Never is a deadline that does not expire
func Never() Deadline {
	return Deadline{}
}

// Refresh returns a deadline with the same timeout, restarted from now
func (d Deadline) Refresh() Deadline {
	return NewDeadline(d.timeout)
}

// At returns the absolute expiry; the zero time means none
func (d Deadline) At() time.Time {
	return d.at
}

// Timeout returns the stage timeout this deadline was built from
func (d Deadline) Timeout() time.Duration {
	return d.timeout
}

// Expired reports whether the deadline has passed
func (d Deadline) Expired() bool {
	return !d.at.IsZero() && !time.Now().Before(d.at)
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Apply sets the deadline on c for both directions
func (d Deadline) Apply(c deadliner) error {
	return c.SetDeadline(d.at)
}
