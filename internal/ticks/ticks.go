// Package ticks provides the timeout type accepted by every blocking call and the
// monotonic tick source used for timeout arithmetic.
package ticks

import (
	"math"
	"time"
)

// Timeout is a wait budget in milliseconds. Immediate and Infinite are reserved.
type Timeout uint32

const (
	// Immediate means try once and never suspend.
	Immediate Timeout = 0
	// Infinite means wait until the condition holds.
	Infinite Timeout = math.MaxUint32
)

// Milliseconds builds a finite timeout. Values that would collide with Infinite
// are clipped one below it.
func Milliseconds(ms uint32) Timeout {
	if ms == uint32(Infinite) {
		return Infinite - 1
	}
	return Timeout(ms)
}

// FromDuration converts a duration, rounding up to whole milliseconds.
// Negative durations are Immediate.
func FromDuration(d time.Duration) Timeout {
	if d <= 0 {
		return Immediate
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms >= time.Duration(Infinite) {
		return Infinite - 1
	}
	return Timeout(ms)
}

func (t Timeout) IsInfinite() bool  { return t == Infinite }
func (t Timeout) IsImmediate() bool { return t == Immediate }

// Duration returns the finite duration. Infinite maps to math.MaxInt64.
func (t Timeout) Duration() time.Duration {
	if t.IsInfinite() {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(t) * time.Millisecond
}

func (t Timeout) String() string {
	switch t {
	case Infinite:
		return "infinite"
	case Immediate:
		return "immediate"
	}
	return t.Duration().String()
}

var epoch = time.Now()

// Frequency is the number of ticks per second returned by NowTicks.
const Frequency = uint64(time.Second)

// NowTicks returns a monotonic tick counter in nanoseconds since process start.
func NowTicks() uint64 {
	return uint64(time.Since(epoch))
}

// Deadline tracks how much of a Timeout is left across retries.
type Deadline struct {
	infinite bool
	end      uint64
}

// NewDeadline starts the clock for t.
func NewDeadline(t Timeout) Deadline {
	if t.IsInfinite() {
		return Deadline{infinite: true}
	}
	return Deadline{end: NowTicks() + uint64(t.Duration())}
}

// Expired reports whether no budget is left. An infinite deadline never expires.
func (d Deadline) Expired() bool {
	return !d.infinite && NowTicks() >= d.end
}

// Remaining returns what is left as a Timeout, Immediate once expired.
func (d Deadline) Remaining() Timeout {
	if d.infinite {
		return Infinite
	}
	now := NowTicks()
	if now >= d.end {
		return Immediate
	}
	return FromDuration(time.Duration(d.end - now))
}

// RemainingDuration returns what is left; the boolean is false for an infinite deadline.
func (d Deadline) RemainingDuration() (time.Duration, bool) {
	if d.infinite {
		return 0, false
	}
	now := NowTicks()
	if now >= d.end {
		return 0, true
	}
	return time.Duration(d.end - now), true
}
