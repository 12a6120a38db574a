// Package semaphore implements a multi-mode semaphore composed of a spin lock,
// which guards the counters, and a Synchronizer, which parks blocked takers.
//
// The Synchronizer mirrors "status > 0": it is posted whenever the semaphore
// opens and reset whenever it closes, always while the spin lock is held, so a
// taker that saw the semaphore closed and then waits can never miss the Set that
// reopened it.
package semaphore

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"rtthreads/internal/errs"
	"rtthreads/internal/osthread"
	"rtthreads/internal/sync/fastmutex"
	"rtthreads/internal/sync/synchronizer"
	"rtthreads/internal/ticks"
)

// Mode selects how Take, Set and Reset interpret the status counter.
type Mode uint8

const (
	// Closed is the zero value: the semaphore has not been opened or was closed.
	Closed Mode = iota
	// Latching stays open once Set until an explicit Reset.
	Latching
	// AutoResetting lets exactly one Take through per Set.
	AutoResetting
	// Counting hands out one permit per Take.
	Counting
	// Mutex is a recursive lock owned by one OS thread. Every successful Take
	// pins the calling goroutine to its OS thread and the matching Set unpins
	// it, so ownership follows the goroutine that took the lock. Set must be
	// called from that goroutine. A Mutex closed while held leaves its owner
	// pinned until the goroutine exits.
	Mutex
	// MultiLock is a gate that several closers can each hold shut.
	MultiLock
	// Invalid marks a semaphore whose Close failed.
	Invalid
	// Exit is the teardown marker: every Take succeeds immediately.
	Exit
)

func (m Mode) String() string {
	switch m {
	case Closed:
		return "closed"
	case Latching:
		return "latching"
	case AutoResetting:
		return "auto_resetting"
	case Counting:
		return "counting"
	case Mutex:
		return "mutex"
	case MultiLock:
		return "multi_lock"
	case Invalid:
		return "invalid"
	case Exit:
		return "exit"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// immediateRetries bounds the yields an immediate Take spends on a busy spin lock.
const immediateRetries = 4

// Semaphore is usable after Open. The zero value is Closed.
type Semaphore struct {
	mu    fastmutex.FastPollingMutexSem
	event synchronizer.Synchronizer

	// Guarded by mu.
	mode   Mode
	status int32
	owner  osthread.ID
	depth  uint32

	waiters atomic.Int32
}

// New returns a semaphore opened in mode.
func New(mode Mode) (*Semaphore, error) {
	s := &Semaphore{}
	if err := s.Open(mode); err != nil {
		return nil, err
	}
	return s, nil
}

// Open prepares the semaphore for mode. Latching, AutoResetting and Counting start
// closed; Mutex starts unlocked and MultiLock starts open.
func (s *Semaphore) Open(mode Mode) error {
	var status int32
	switch mode {
	case Latching, AutoResetting, Counting:
		status = 0
	case Mutex, MultiLock:
		status = 1
	default:
		return errs.Wrap(errs.UnsupportedFeature, fmt.Sprintf("semaphore cannot be opened in %s", mode), nil)
	}

	if err := s.mu.Lock(ticks.Infinite); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.mode != Closed {
		return errs.Wrap(errs.InvalidOperation, fmt.Sprintf("semaphore already open in %s", s.mode), nil)
	}
	if err := s.event.Open(); err != nil {
		return err
	}
	if status > 0 {
		if err := s.event.Post(); err != nil {
			s.event.Close()
			return err
		}
	}
	s.mode = mode
	s.status = status
	s.owner = osthread.InvalidID
	s.depth = 0
	return nil
}

// Close switches to Exit, wakes every blocked taker, waits until they have all
// left Take and then releases the Synchronizer.
func (s *Semaphore) Close() error {
	if err := s.mu.Lock(ticks.Infinite); err != nil {
		return err
	}
	switch s.mode {
	case Closed, Invalid, Exit:
		mode := s.mode
		s.mu.Unlock()
		return errs.Wrap(errs.InvalidOperation, fmt.Sprintf("cannot close a semaphore in %s", mode), nil)
	}
	s.mode = Exit
	postErr := s.event.Post()
	s.mu.Unlock()

	for s.waiters.Load() > 0 {
		runtime.Gosched()
	}

	s.lockInfinite()
	defer s.mu.Unlock()
	closeErr := s.event.Close()
	s.status = 0
	s.owner = osthread.InvalidID
	s.depth = 0
	if err := errors.Join(postErr, closeErr); err != nil {
		s.mode = Invalid
		errs.ReportErr(err, "semaphore close failed")
		return err
	}
	s.mode = Closed
	return nil
}

// Take waits until the semaphore lets the caller through or timeout elapses.
// On timeout it returns an error matching errs.ErrTimeout and leaves the state
// untouched.
func (s *Semaphore) Take(timeout ticks.Timeout) error {
	deadline := ticks.NewDeadline(timeout)
	registered := false
	leave := func() {
		if registered {
			s.waiters.Add(-1)
			registered = false
		}
	}

	for {
		if err := s.lock(deadline.Remaining()); err != nil {
			leave()
			return err
		}
		leave()

		done, err := s.takeLocked()
		if done || err != nil {
			s.mu.Unlock()
			return err
		}

		remaining := deadline.Remaining()
		if remaining.IsImmediate() {
			s.mu.Unlock()
			return errs.ErrTimeout
		}
		s.waiters.Add(1)
		registered = true
		s.mu.Unlock()

		if err := s.event.Wait(remaining); err != nil {
			leave()
			return err
		}
	}
}

// TryTake is Take with an immediate timeout.
func (s *Semaphore) TryTake() error {
	return s.Take(ticks.Immediate)
}

// takeLocked applies the mode's rule. It reports whether the caller got through.
func (s *Semaphore) takeLocked() (bool, error) {
	switch s.mode {
	case Exit:
		return true, nil
	case Latching, MultiLock:
		return s.status > 0, nil
	case AutoResetting:
		if s.status > 0 {
			s.status = 0
			s.closeGate()
			return true, nil
		}
		return false, nil
	case Counting:
		if s.status > 0 {
			s.status--
			if s.status == 0 {
				s.closeGate()
			}
			return true, nil
		}
		return false, nil
	case Mutex:
		// Pinned first: an unpinned goroutine could read one thread id and
		// then run on another thread.
		runtime.LockOSThread()
		caller := osthread.Current()
		if s.status > 0 {
			s.status = 0
			s.owner = caller
			s.depth = 1
			s.closeGate()
			return true, nil
		}
		if s.owner == caller {
			s.depth++
			return true, nil
		}
		runtime.UnlockOSThread()
		return false, nil
	case Closed, Invalid:
		return false, errs.Wrap(errs.InvalidOperation, fmt.Sprintf("take on a semaphore in %s", s.mode), nil)
	}
	return false, errs.Wrap(errs.UnsupportedFeature, fmt.Sprintf("take in %s", s.mode), nil)
}

// Set moves the semaphore toward open. count is only used in Counting mode.
func (s *Semaphore) Set(count uint32) error {
	if err := s.mu.Lock(ticks.Infinite); err != nil {
		return err
	}
	defer s.mu.Unlock()

	switch s.mode {
	case Latching, AutoResetting:
		s.status = 1
	case Counting:
		next := int64(s.status) + int64(count)
		if next > math.MaxInt32 {
			next = math.MaxInt32
		}
		s.status = int32(next)
	case Mutex:
		caller := osthread.Current()
		if s.depth == 0 || s.owner != caller {
			return errs.Wrap(errs.InvalidOperation, fmt.Sprintf("thread %d does not own the mutex", caller), nil)
		}
		s.depth--
		runtime.UnlockOSThread()
		if s.depth > 0 {
			return nil
		}
		s.status = 1
		s.owner = osthread.InvalidID
	case MultiLock:
		if s.status <= 0 {
			s.status++
		}
	case Closed, Invalid, Exit:
		return errs.Wrap(errs.InvalidOperation, fmt.Sprintf("set on a semaphore in %s", s.mode), nil)
	default:
		return errs.Wrap(errs.UnsupportedFeature, fmt.Sprintf("set in %s", s.mode), nil)
	}

	if s.status > 0 {
		return s.event.Post()
	}
	return nil
}

// Reset moves the semaphore toward closed. In MultiLock mode the gate needs count
// Set calls to reopen. A Mutex cannot be reset.
func (s *Semaphore) Reset(count uint32) error {
	if err := s.mu.Lock(ticks.Infinite); err != nil {
		return err
	}
	defer s.mu.Unlock()

	switch s.mode {
	case Latching, AutoResetting, Counting:
		s.status = 0
	case MultiLock:
		next := 1 - int64(count)
		if next < math.MinInt32 {
			next = math.MinInt32
		}
		s.status = int32(next)
		if s.status > 0 {
			return s.event.Post()
		}
	case Mutex:
		return errs.Wrap(errs.InvalidOperation, "a mutex semaphore cannot be reset", nil)
	case Closed, Invalid, Exit:
		return errs.Wrap(errs.InvalidOperation, fmt.Sprintf("reset on a semaphore in %s", s.mode), nil)
	default:
		return errs.Wrap(errs.UnsupportedFeature, fmt.Sprintf("reset in %s", s.mode), nil)
	}
	return s.event.Reset()
}

// lock takes the spin lock within timeout. An immediate timeout still yields a
// few times before giving up, so a TryTake racing a short Set or Take on an
// open semaphore is not reported as a timeout.
func (s *Semaphore) lock(timeout ticks.Timeout) error {
	err := s.mu.Lock(timeout)
	if err == nil || !timeout.IsImmediate() {
		return err
	}
	for i := 0; i < immediateRetries; i++ {
		runtime.Gosched()
		if s.mu.TryLock() {
			return nil
		}
	}
	return err
}

// lockInfinite takes the spin lock for the accessors and teardown. An
// infinite Lock only returns once the flag is held, so there is no error to
// propagate.
func (s *Semaphore) lockInfinite() {
	_ = s.mu.Lock(ticks.Infinite)
}

// closeGate re-arms the Synchronizer after a take closed the semaphore. A failure
// only costs extra wakeups, so it is reported rather than returned.
func (s *Semaphore) closeGate() {
	if err := s.event.Reset(); err != nil {
		errs.ReportErr(err, "semaphore could not re-arm its synchronizer")
	}
}

// Mode returns the current mode.
func (s *Semaphore) Mode() Mode {
	s.lockInfinite()
	defer s.mu.Unlock()
	return s.mode
}

// Status returns the raw counter. Its meaning depends on the mode.
func (s *Semaphore) Status() int32 {
	s.lockInfinite()
	defer s.mu.Unlock()
	return s.status
}

// Owner returns the thread holding a Mutex semaphore, or osthread.InvalidID.
func (s *Semaphore) Owner() osthread.ID {
	s.lockInfinite()
	defer s.mu.Unlock()
	if s.mode != Mutex {
		return osthread.InvalidID
	}
	return s.owner
}

// Depth returns how many times the owner holds a Mutex semaphore.
func (s *Semaphore) Depth() uint32 {
	s.lockInfinite()
	defer s.mu.Unlock()
	return s.depth
}

// Waiters returns the number of threads currently parked in Take.
func (s *Semaphore) Waiters() int {
	return int(s.waiters.Load())
}
