//go:build !linux && !windows

package synchronizer

import (
	"sync"
	"time"

	"rtthreads/internal/ticks"
)

// osHandle is a channel that is closed while signalled and replaced on reset.
type osHandle struct {
	mu        sync.Mutex
	ch        chan struct{}
	signalled bool
}

func (h *osHandle) open() error {
	h.mu.Lock()
	h.ch = make(chan struct{})
	h.signalled = false
	h.mu.Unlock()
	return nil
}

func (h *osHandle) close() error {
	h.mu.Lock()
	if !h.signalled {
		close(h.ch)
		h.signalled = true
	}
	h.mu.Unlock()
	return nil
}

func (h *osHandle) post() error {
	h.mu.Lock()
	if !h.signalled {
		close(h.ch)
		h.signalled = true
	}
	h.mu.Unlock()
	return nil
}

func (h *osHandle) reset() error {
	h.mu.Lock()
	if h.signalled {
		h.ch = make(chan struct{})
		h.signalled = false
	}
	h.mu.Unlock()
	return nil
}

func (h *osHandle) wait(deadline ticks.Deadline) (bool, error) {
	h.mu.Lock()
	ch := h.ch
	h.mu.Unlock()

	remaining, finite := deadline.RemainingDuration()
	if !finite {
		<-ch
		return true, nil
	}
	select {
	case <-ch:
		return true, nil
	default:
	}
	if remaining <= 0 {
		return false, nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}
