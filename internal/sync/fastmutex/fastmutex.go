// Package fastmutex implements FastPollingMutexSem, a spin lock over a single
// atomic flag with a bounded wait.
//
// The lock is not recursive: a holder that calls Lock again spins against itself
// until its timeout expires. It is meant for critical sections of a few
// instructions; anything longer belongs behind a semaphore.
package fastmutex

import (
	"runtime"
	"sync/atomic"

	"rtthreads/internal/errs"
	"rtthreads/internal/ticks"
)

const (
	unlocked int32 = 0
	locked   int32 = 1
)

// FastPollingMutexSem is usable as its zero value, which is unlocked.
type FastPollingMutexSem struct {
	flag atomic.Int32
}

// Create resets the flag to unlocked, or to locked when locked is true.
func (m *FastPollingMutexSem) Create(startLocked bool) {
	if startLocked {
		m.flag.Store(locked)
		return
	}
	m.flag.Store(unlocked)
}

// TryLock makes a single attempt and never yields.
func (m *FastPollingMutexSem) TryLock() bool {
	return m.flag.CompareAndSwap(unlocked, locked)
}

// Lock spins, yielding the processor between attempts, until the flag is taken or
// timeout elapses. It returns nil or an error matching errs.ErrTimeout.
func (m *FastPollingMutexSem) Lock(timeout ticks.Timeout) error {
	if m.TryLock() {
		return nil
	}
	if timeout.IsImmediate() {
		return errs.ErrTimeout
	}
	deadline := ticks.NewDeadline(timeout)
	for {
		runtime.Gosched()
		if m.TryLock() {
			return nil
		}
		if deadline.Expired() {
			return errs.ErrTimeout
		}
	}
}

// Unlock clears the flag. It does not check who holds it.
func (m *FastPollingMutexSem) Unlock() {
	m.flag.Store(unlocked)
}

// Locked reports the flag as seen at the time of the call.
func (m *FastPollingMutexSem) Locked() bool {
	return m.flag.Load() == locked
}
