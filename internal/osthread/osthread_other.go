//go:build !linux && !windows

package osthread

import (
	"runtime"
)

// portableBackend serves targets without a native binding. Threads are identified
// by goroutine id; scheduling requests are accepted and not applied, and liveness
// is left to the registry.
type portableBackend struct{}

func newBackend() Backend { return portableBackend{} }

func (portableBackend) Current() ID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return ID(parseGoroutineID(buf[:n]))
}

func (portableBackend) IsAlive(id ID) bool { return id != InvalidID }

func (portableBackend) SetPriority(ID, PriorityClass, uint8) error { return nil }

func (portableBackend) SetAffinity(ID, CPUMask) error { return nil }

func (portableBackend) Affinity(ID) (CPUMask, error) { return AllCPUs(), nil }

func (portableBackend) SetName(ID, string) error { return nil }
