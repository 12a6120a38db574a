//go:build linux

package synchronizer

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"

	"rtthreads/internal/ticks"
)

// osHandle is a non-blocking eventfd. A non-zero counter means signalled; poll
// reports POLLIN without touching the counter, and one read drains it.
type osHandle struct {
	fd int
}

func (h *osHandle) open() error {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return err
	}
	h.fd = fd
	return nil
}

func (h *osHandle) close() error {
	fd := h.fd
	h.fd = -1
	return unix.Close(fd)
}

func (h *osHandle) post() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(h.fd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// Counter saturated: the handle is already signalled.
		return nil
	}
	return err
}

func (h *osHandle) reset() error {
	var buf [8]byte
	_, err := unix.Read(h.fd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return err
}

func (h *osHandle) wait(deadline ticks.Deadline) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN}}
	for {
		ms := -1
		if remaining := deadline.Remaining(); !remaining.IsInfinite() {
			ms = int(remaining)
		}
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			if deadline.Expired() {
				return false, nil
			}
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, unix.EBADF
		}
		return true, nil
	}
}
