package threads

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
)

// Sample holds the lifecycle events of a single reporting interval.
type Sample struct {
	Timestamp  time.Time
	Started    uint64
	Terminated uint64
	Killed     uint64
	Failed     uint64
}

// Diagnostics counts thread lifecycle events. Totals only grow; the interval
// counters are drained by Report.
type Diagnostics struct {
	started    atomic.Uint64
	terminated atomic.Uint64
	killed     atomic.Uint64
	failed     atomic.Uint64

	// Interval counters, swapped to zero by Report
	intervalStarted    atomic.Uint64
	intervalTerminated atomic.Uint64
	intervalKilled     atomic.Uint64
	intervalFailed     atomic.Uint64

	mu      sync.Mutex
	history []Sample
}

// maxHistory bounds the kept samples; older ones are dropped first.
const maxHistory = 720

func newDiagnostics() *Diagnostics {
	return &Diagnostics{history: make([]Sample, 0, 64)}
}

func (d *Diagnostics) recordStarted() {
	d.started.Add(1)
	d.intervalStarted.Add(1)
}

func (d *Diagnostics) recordTerminated() {
	d.terminated.Add(1)
	d.intervalTerminated.Add(1)
}

func (d *Diagnostics) recordKilled() {
	d.killed.Add(1)
	d.intervalKilled.Add(1)
}

func (d *Diagnostics) recordFailed() {
	d.failed.Add(1)
	d.intervalFailed.Add(1)
}

// Started is the number of threads whose entry point was released.
func (d *Diagnostics) Started() uint64 { return d.started.Load() }

// Terminated is the number of threads whose entry point returned while still registered.
func (d *Diagnostics) Terminated() uint64 { return d.terminated.Load() }

// Killed is the number of successful Kill calls.
func (d *Diagnostics) Killed() uint64 { return d.killed.Load() }

// Failed is the number of BeginThread calls that returned an error.
func (d *Diagnostics) Failed() uint64 { return d.failed.Load() }

// Report closes the current interval, keeps it in the history and logs it
// when anything happened.
func (d *Diagnostics) Report(l *log.Logger, registered int) Sample {
	s := Sample{
		Timestamp:  time.Now(),
		Started:    d.intervalStarted.Swap(0),
		Terminated: d.intervalTerminated.Swap(0),
		Killed:     d.intervalKilled.Swap(0),
		Failed:     d.intervalFailed.Swap(0),
	}

	d.mu.Lock()
	if len(d.history) == maxHistory {
		copy(d.history, d.history[1:])
		d.history = d.history[:maxHistory-1]
	}
	d.history = append(d.history, s)
	d.mu.Unlock()

	if s.Started == 0 && s.Terminated == 0 && s.Killed == 0 && s.Failed == 0 {
		return s
	}
	l.Debug().
		Int("registered", registered).
		Uint64("started", s.Started).
		Uint64("terminated", s.Terminated).
		Uint64("killed", s.Killed).
		Uint64("failed", s.Failed).
		Msg("Thread lifecycle (per interval)")
	return s
}

// History returns a copy of the kept samples, oldest first.
func (d *Diagnostics) History() []Sample {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Sample, len(d.history))
	copy(out, d.history)
	return out
}
