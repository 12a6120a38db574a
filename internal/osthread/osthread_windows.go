//go:build windows

package osthread

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"rtthreads/internal/errs"
)

var (
	kernel32                  = windows.NewLazySystemDLL("kernel32.dll")
	procOpenThread            = kernel32.NewProc("OpenThread")
	procGetExitCodeThread     = kernel32.NewProc("GetExitCodeThread")
	procSetThreadPriority     = kernel32.NewProc("SetThreadPriority")
	procSetThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
	procSetThreadDescription  = kernel32.NewProc("SetThreadDescription")
)

const (
	threadSetInformation          = 0x0020
	threadQueryLimitedInformation = 0x0800
	stillActive                   = 259

	threadPriorityIdle         = -15
	threadPriorityLowest       = -2
	threadPriorityBelowNormal  = -1
	threadPriorityNormal       = 0
	threadPriorityAboveNormal  = 1
	threadPriorityHighest      = 2
	threadPriorityTimeCritical = 15
)

// priorityTable maps a level to a Win32 thread priority; two levels share each step.
var priorityTable = [MaxPriorityLevel + 1]int32{
	threadPriorityIdle, threadPriorityIdle,
	threadPriorityLowest, threadPriorityLowest,
	threadPriorityBelowNormal, threadPriorityBelowNormal,
	threadPriorityNormal, threadPriorityNormal, threadPriorityNormal, threadPriorityNormal,
	threadPriorityAboveNormal, threadPriorityAboveNormal,
	threadPriorityHighest, threadPriorityHighest,
	threadPriorityTimeCritical, threadPriorityTimeCritical,
}

type windowsBackend struct{}

func newBackend() Backend { return windowsBackend{} }

func (windowsBackend) Current() ID {
	return ID(windows.GetCurrentThreadId())
}

func openThread(access uint32, id ID) (windows.Handle, error) {
	h, _, err := procOpenThread.Call(uintptr(access), 0, uintptr(uint32(id)))
	if h == 0 {
		return 0, errs.Wrap(errs.OSError, fmt.Sprintf("OpenThread(%d)", id), err)
	}
	return windows.Handle(h), nil
}

func (windowsBackend) IsAlive(id ID) bool {
	if id == InvalidID {
		return false
	}
	h, err := openThread(threadQueryLimitedInformation, id)
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	ret, _, _ := procGetExitCodeThread.Call(uintptr(h), uintptr(unsafe.Pointer(&code)))
	return ret != 0 && code == stillActive
}

// SetPriority only moves the thread inside the process priority class; the class
// of the whole process is left to the operator.
func (windowsBackend) SetPriority(id ID, class PriorityClass, level uint8) error {
	h, err := openThread(threadSetInformation|threadQueryLimitedInformation, id)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	priority := priorityTable[ClampLevel(level)]
	if class == IdlePriorityClass {
		priority = threadPriorityIdle
	}
	ret, _, callErr := procSetThreadPriority.Call(uintptr(h), uintptr(priority))
	if ret == 0 {
		return errs.Wrap(errs.OSError, "SetThreadPriority", callErr)
	}
	return nil
}

func (windowsBackend) SetAffinity(id ID, mask CPUMask) error {
	if mask == UndefinedCPUs {
		return errs.Wrap(errs.ParametersError, "empty cpu mask", nil)
	}
	h, err := openThread(threadSetInformation|threadQueryLimitedInformation, id)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	ret, _, callErr := procSetThreadAffinityMask.Call(uintptr(h), uintptr(mask))
	if ret == 0 {
		return errs.Wrap(errs.OSError, "SetThreadAffinityMask", callErr)
	}
	return nil
}

// Affinity is answered by setting the mask to the same value the call returns;
// Win32 has no direct getter for a thread's affinity.
func (b windowsBackend) Affinity(id ID) (CPUMask, error) {
	h, err := openThread(threadSetInformation|threadQueryLimitedInformation, id)
	if err != nil {
		return UndefinedCPUs, err
	}
	defer windows.CloseHandle(h)

	all := AllCPUs()
	prev, _, callErr := procSetThreadAffinityMask.Call(uintptr(h), uintptr(all))
	if prev == 0 {
		return UndefinedCPUs, errs.Wrap(errs.OSError, "SetThreadAffinityMask", callErr)
	}
	procSetThreadAffinityMask.Call(uintptr(h), prev)
	return CPUMask(prev), nil
}

func (windowsBackend) SetName(id ID, name string) error {
	if procSetThreadDescription.Find() != nil {
		// Not available before Windows 10 1607.
		return nil
	}
	h, err := openThread(threadSetInformation, id)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return errs.Wrap(errs.ParametersError, "thread name", err)
	}
	hr, _, _ := procSetThreadDescription.Call(uintptr(h), uintptr(unsafe.Pointer(p)))
	if int32(hr) < 0 {
		return errs.Wrap(errs.OSError, fmt.Sprintf("SetThreadDescription: hresult %#x", uint32(hr)), nil)
	}
	return nil
}
