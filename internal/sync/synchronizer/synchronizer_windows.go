//go:build windows

package synchronizer

import (
	"fmt"

	"golang.org/x/sys/windows"

	"rtthreads/internal/ticks"
)

const (
	waitObject0 = 0x00000000
	waitTimeout = 0x00000102
	infinite    = 0xFFFFFFFF
)

// osHandle is a manual-reset event object.
type osHandle struct {
	event windows.Handle
}

func (h *osHandle) open() error {
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return err
	}
	h.event = ev
	return nil
}

func (h *osHandle) close() error {
	ev := h.event
	h.event = 0
	return windows.CloseHandle(ev)
}

func (h *osHandle) post() error  { return windows.SetEvent(h.event) }
func (h *osHandle) reset() error { return windows.ResetEvent(h.event) }

func (h *osHandle) wait(deadline ticks.Deadline) (bool, error) {
	ms := uint32(infinite)
	if remaining := deadline.Remaining(); !remaining.IsInfinite() {
		ms = uint32(remaining)
	}
	ret, err := windows.WaitForSingleObject(h.event, ms)
	switch ret {
	case waitObject0:
		return true, nil
	case waitTimeout:
		return false, nil
	}
	if err == nil {
		err = fmt.Errorf("WaitForSingleObject returned %#x", ret)
	}
	return false, err
}
