//go:build linux

package osthread

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"rtthreads/internal/errs"
)

// Linux maps (class, level) onto sched_setattr: SCHED_NORMAL for every class but
// RealTime, which uses SCHED_FIFO. The numeric priority is 28*class + level, bounded
// by what the policy accepts.
const (
	priorityClassStride = 28
	maxFIFOPriority     = 99
	maxNormalPriority   = 0

	// pthread names are limited to 16 bytes including the terminator.
	maxThreadNameLen = 15
)

type linuxBackend struct {
	pid int
}

func newBackend() Backend {
	return &linuxBackend{pid: os.Getpid()}
}

func (b *linuxBackend) Current() ID {
	return ID(unix.Gettid())
}

// IsAlive probes the thread with signal 0, which performs the permission and
// existence checks without delivering anything.
func (b *linuxBackend) IsAlive(id ID) bool {
	if id == InvalidID {
		return false
	}
	return unix.Tgkill(b.pid, int(id), syscall.Signal(0)) == nil
}

func (b *linuxBackend) SetPriority(id ID, class PriorityClass, level uint8) error {
	policy := uint32(unix.SCHED_NORMAL)
	maxPriority := uint32(maxNormalPriority)
	if class == RealTimePriorityClass {
		policy = unix.SCHED_FIFO
		maxPriority = maxFIFOPriority
	}

	priority := priorityClassStride*uint32(class) + uint32(level)
	if priority > maxPriority {
		if policy == unix.SCHED_FIFO {
			errs.ReportError(errs.Warning, "requested thread priority exceeds the policy maximum, clipping")
		}
		priority = maxPriority
	}

	attr, err := unix.SchedGetAttr(int(id), 0)
	if err != nil {
		return errs.Wrap(errs.OSError, "sched_getattr", err)
	}
	attr.Policy = policy
	attr.Priority = priority
	if err := unix.SchedSetAttr(int(id), attr, 0); err != nil {
		return errs.Wrap(errs.OSError, "sched_setattr", err)
	}
	return nil
}

func (b *linuxBackend) SetAffinity(id ID, mask CPUMask) error {
	var set unix.CPUSet
	set.Zero()
	for cpu := 0; cpu < 64; cpu++ {
		if mask.Enabled(cpu) {
			set.Set(cpu)
		}
	}
	if set.Count() == 0 {
		return errs.Wrap(errs.ParametersError, fmt.Sprintf("empty cpu mask %s", mask), nil)
	}
	if err := unix.SchedSetaffinity(int(id), &set); err != nil {
		return errs.Wrap(errs.OSError, "sched_setaffinity", err)
	}
	return nil
}

func (b *linuxBackend) Affinity(id ID) (CPUMask, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(int(id), &set); err != nil {
		return UndefinedCPUs, errs.Wrap(errs.OSError, "sched_getaffinity", err)
	}
	var mask CPUMask
	for cpu := 0; cpu < 64; cpu++ {
		if set.IsSet(cpu) {
			mask |= 1 << uint(cpu)
		}
	}
	return mask, nil
}

// SetName writes the task comm file, which works for any thread of this process
// unlike prctl(PR_SET_NAME) that only renames the caller.
func (b *linuxBackend) SetName(id ID, name string) error {
	if len(name) > maxThreadNameLen {
		name = name[:maxThreadNameLen]
	}
	path := fmt.Sprintf("/proc/self/task/%d/comm", id)
	if err := os.WriteFile(path, []byte(name), 0); err != nil {
		return errs.Wrap(errs.OSError, "set thread name", err)
	}
	return nil
}
