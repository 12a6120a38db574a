package synchronizer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"rtthreads/internal/errs"
	"rtthreads/internal/ticks"
)

func TestOpenClose(t *testing.T) {
	var s Synchronizer
	if err := s.Post(); !errors.Is(err, errs.ErrInvalidOperation) {
		t.Errorf("Post on unopened handle: got %v, want InvalidOperation", err)
	}
	if err := s.Wait(ticks.Immediate); !errors.Is(err, errs.ErrInvalidOperation) {
		t.Errorf("Wait on unopened handle: got %v, want InvalidOperation", err)
	}
	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Open(); !errors.Is(err, errs.ErrInvalidOperation) {
		t.Errorf("second Open: got %v, want InvalidOperation", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); !errors.Is(err, errs.ErrInvalidOperation) {
		t.Errorf("second Close: got %v, want InvalidOperation", err)
	}
	if err := s.Reset(); !errors.Is(err, errs.ErrInvalidOperation) {
		t.Errorf("Reset after Close: got %v, want InvalidOperation", err)
	}
}

func TestWaitTimesOutWhenUnsignalled(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	start := time.Now()
	err = s.Wait(ticks.Milliseconds(30))
	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("Wait: got %v, want Timeout", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Wait returned after %v, before its timeout", elapsed)
	}
	if err := s.Wait(ticks.Immediate); !errors.Is(err, errs.ErrTimeout) {
		t.Errorf("immediate Wait: got %v, want Timeout", err)
	}
}

func TestPostIsLevelTriggered(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := s.Post(); err != nil {
		t.Fatalf("second Post: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Wait(ticks.Immediate); err != nil {
			t.Fatalf("Wait #%d on signalled handle: %v", i, err)
		}
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := s.Wait(ticks.Immediate); !errors.Is(err, errs.ErrTimeout) {
		t.Errorf("Wait after Reset: got %v, want Timeout", err)
	}
	if err := s.Reset(); err != nil {
		t.Errorf("Reset of an unsignalled handle: %v", err)
	}
}

func TestPostReleasesAllWaiters(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	const waiters = 8
	var wg sync.WaitGroup
	results := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Wait(ticks.Milliseconds(5000))
		}()
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
	wg.Wait()
	close(results)
	for err := range results {
		if err != nil {
			t.Errorf("waiter returned %v", err)
		}
	}
}

func TestResetWait(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := s.ResetWait(ticks.Milliseconds(10)); !errors.Is(err, errs.ErrTimeout) {
		t.Errorf("ResetWait on a previously signalled handle: got %v, want Timeout", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Post()
	}()
	if err := s.ResetWait(ticks.Milliseconds(5000)); err != nil {
		t.Errorf("ResetWait with a later Post: %v", err)
	}
}
