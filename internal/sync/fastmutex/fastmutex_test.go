package fastmutex

import (
	"errors"
	"sync"
	"testing"
	"time"

	"rtthreads/internal/errs"
	"rtthreads/internal/ticks"
)

func TestTryLock(t *testing.T) {
	var m FastPollingMutexSem
	if !m.TryLock() {
		t.Fatal("TryLock on a fresh mutex failed")
	}
	if m.TryLock() {
		t.Fatal("TryLock succeeded on a held mutex")
	}
	if !m.Locked() {
		t.Error("Locked() = false while held")
	}
	m.Unlock()
	if m.Locked() {
		t.Error("Locked() = true after Unlock")
	}
}

func TestCreate(t *testing.T) {
	var m FastPollingMutexSem
	m.Create(true)
	if m.TryLock() {
		t.Error("mutex created locked was acquired")
	}
	m.Create(false)
	if !m.TryLock() {
		t.Error("mutex created unlocked could not be acquired")
	}
}

// A second Lock by the holder must not succeed: the mutex is not recursive.
func TestRecursiveLockTimesOut(t *testing.T) {
	var m FastPollingMutexSem
	if err := m.Lock(ticks.Infinite); err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	start := time.Now()
	err := m.Lock(ticks.Milliseconds(20))
	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("second Lock: got %v, want Timeout", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("second Lock gave up after %v", elapsed)
	}
	if err := m.Lock(ticks.Immediate); !errors.Is(err, errs.ErrTimeout) {
		t.Errorf("immediate Lock on held mutex: got %v, want Timeout", err)
	}
	m.Unlock()
}

func TestLockWaitsForRelease(t *testing.T) {
	var m FastPollingMutexSem
	m.Lock(ticks.Infinite)

	acquired := make(chan error, 1)
	go func() {
		acquired <- m.Lock(ticks.Milliseconds(5000))
	}()

	select {
	case err := <-acquired:
		t.Fatalf("Lock returned %v while the mutex was held", err)
	case <-time.After(20 * time.Millisecond):
	}
	m.Unlock()
	if err := <-acquired; err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
}

func TestMutualExclusion(t *testing.T) {
	var (
		m       FastPollingMutexSem
		counter int
		wg      sync.WaitGroup
	)
	const (
		workers    = 8
		iterations = 2000
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if err := m.Lock(ticks.Infinite); err != nil {
					t.Errorf("Lock: %v", err)
					return
				}
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != workers*iterations {
		t.Errorf("counter = %d, want %d", counter, workers*iterations)
	}
}
