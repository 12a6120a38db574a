// Package synchronizer wraps one OS waitable handle with manual-reset semantics:
// Post makes the handle signalled until Reset, and Wait returns as soon as it is
// signalled without consuming the signal.
//
// Backends:
//   - linux: eventfd + poll
//   - windows: manual-reset event object
//   - others: a Go channel closed to broadcast
package synchronizer

import (
	"sync/atomic"

	"rtthreads/internal/errs"
	"rtthreads/internal/ticks"
)

// Synchronizer is safe for concurrent Post, Reset and Wait once opened. Open and
// Close must not race with each other or with other calls.
type Synchronizer struct {
	open atomic.Bool
	h    osHandle
}

// New returns an opened Synchronizer.
func New() (*Synchronizer, error) {
	s := &Synchronizer{}
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Synchronizer) Open() error {
	if s.open.Load() {
		return errs.Wrap(errs.InvalidOperation, "synchronizer already open", nil)
	}
	if err := s.h.open(); err != nil {
		return errs.Wrap(errs.OSError, "synchronizer open", err)
	}
	s.open.Store(true)
	return nil
}

func (s *Synchronizer) Close() error {
	if !s.open.CompareAndSwap(true, false) {
		return errs.Wrap(errs.InvalidOperation, "synchronizer not open", nil)
	}
	if err := s.h.close(); err != nil {
		return errs.Wrap(errs.OSError, "synchronizer close", err)
	}
	return nil
}

// IsOpen reports whether the handle is usable.
func (s *Synchronizer) IsOpen() bool { return s.open.Load() }

// Post sets the handle to signalled and releases every waiter.
func (s *Synchronizer) Post() error {
	if !s.open.Load() {
		return errs.Wrap(errs.InvalidOperation, "synchronizer not open", nil)
	}
	if err := s.h.post(); err != nil {
		return errs.Wrap(errs.OSError, "synchronizer post", err)
	}
	return nil
}

// Reset clears the signalled state.
func (s *Synchronizer) Reset() error {
	if !s.open.Load() {
		return errs.Wrap(errs.InvalidOperation, "synchronizer not open", nil)
	}
	if err := s.h.reset(); err != nil {
		return errs.Wrap(errs.OSError, "synchronizer reset", err)
	}
	return nil
}

// Wait blocks until the handle is signalled or timeout elapses. It returns nil,
// an error matching errs.ErrTimeout, or one matching errs.ErrOSError.
func (s *Synchronizer) Wait(timeout ticks.Timeout) error {
	if !s.open.Load() {
		return errs.Wrap(errs.InvalidOperation, "synchronizer not open", nil)
	}
	signalled, err := s.h.wait(ticks.NewDeadline(timeout))
	if err != nil {
		return errs.Wrap(errs.OSError, "synchronizer wait", err)
	}
	if !signalled {
		return errs.ErrTimeout
	}
	return nil
}

// ResetWait clears the handle and then waits for the next Post.
func (s *Synchronizer) ResetWait(timeout ticks.Timeout) error {
	if err := s.Reset(); err != nil {
		return err
	}
	return s.Wait(timeout)
}
