// Package osthread is the seam between the portable thread core and the operating
// system. It defines the thread identifier, the priority and CPU-set types, and the
// Backend each target implements (see osthread_linux.go, osthread_windows.go and
// osthread_other.go).
package osthread

import (
	"fmt"
	"math/bits"
	"runtime"
)

// ID identifies one native thread. On Linux it is the kernel TID, on Windows the
// Win32 thread id, and on the portable target the goroutine id.
type ID uint64

// InvalidID is never returned by a successful thread creation.
const InvalidID ID = 0

// PriorityClass is the coarse scheduling class of a thread.
type PriorityClass uint8

const (
	UnknownPriorityClass PriorityClass = iota
	IdlePriorityClass
	NormalPriorityClass
	RealTimePriorityClass
)

// MaxPriorityLevel is the highest level inside a class. Larger values are clamped.
const MaxPriorityLevel uint8 = 15

func (c PriorityClass) String() string {
	switch c {
	case IdlePriorityClass:
		return "idle"
	case NormalPriorityClass:
		return "normal"
	case RealTimePriorityClass:
		return "realtime"
	default:
		return "unknown"
	}
}

// ClampLevel bounds a priority level to [0, MaxPriorityLevel].
func ClampLevel(level uint8) uint8 {
	if level > MaxPriorityLevel {
		return MaxPriorityLevel
	}
	return level
}

// CPUMask selects CPUs by bit, bit 0 being CPU 0. UndefinedCPUs asks for the default set.
type CPUMask uint64

const UndefinedCPUs CPUMask = 0

// AllCPUs returns a mask with one bit per CPU usable by this process.
func AllCPUs() CPUMask {
	n := runtime.NumCPU()
	if n >= 64 {
		return ^CPUMask(0)
	}
	return CPUMask(1)<<uint(n) - 1
}

// Enabled reports whether cpu is part of the mask.
func (m CPUMask) Enabled(cpu int) bool {
	return cpu >= 0 && cpu < 64 && m&(1<<uint(cpu)) != 0
}

// Count returns the number of CPUs in the mask.
func (m CPUMask) Count() int { return bits.OnesCount64(uint64(m)) }

func (m CPUMask) String() string { return fmt.Sprintf("%#x", uint64(m)) }

// Backend is implemented once per target. All methods except Current address a
// thread other than the caller, identified by its ID.
type Backend interface {
	// Current returns the identifier of the calling OS thread. The result is only
	// stable when the calling goroutine is locked to its thread.
	Current() ID
	// IsAlive reports whether the OS still schedules the thread.
	IsAlive(id ID) bool
	// SetPriority applies an already clamped class and level.
	SetPriority(id ID, class PriorityClass, level uint8) error
	// SetAffinity restricts the thread to the CPUs in mask.
	SetAffinity(id ID, mask CPUMask) error
	// Affinity returns the CPUs the thread may run on.
	Affinity(id ID) (CPUMask, error)
	// SetName labels the thread for OS tooling. Backends may truncate the name.
	SetName(id ID, name string) error
}

var platform = newBackend()

// Default returns the backend for the target the binary was built for.
func Default() Backend { return platform }

// Current returns the identifier of the calling thread using the default backend.
func Current() ID { return platform.Current() }
