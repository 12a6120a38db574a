package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rtthreads/internal/osthread"
	"rtthreads/internal/threads"
)

func newManager(t *testing.T) *threads.Manager {
	t.Helper()
	m, err := threads.New(threads.DefaultOptions())
	if err != nil {
		t.Fatalf("threads.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

// gather registers c on a pedantic registry and returns every sample keyed by
// metric name and, for labelled series, by the value of label.
func gather(t *testing.T, c prometheus.Collector, label string) map[string]float64 {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label {
					key += "/" + lp.GetValue()
				}
			}
			switch {
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func TestThreadsCollectorEmpty(t *testing.T) {
	got := gather(t, NewThreadsCollector(newManager(t), false), "class")

	for _, name := range []string{
		"rtthreads_registered_threads",
		"rtthreads_registry_capacity",
		"rtthreads_threads_started_total",
		"rtthreads_thread_start_failures_total",
	} {
		v, ok := got[name]
		if !ok {
			t.Errorf("%s missing", name)
		} else if v != 0 {
			t.Errorf("%s = %v on an empty registry", name, v)
		}
	}
	if _, ok := got["rtthreads_threads_by_priority_class/realtime"]; !ok {
		t.Error("every priority class must be exported, even at zero")
	}
	if _, ok := got["rtthreads_thread_priority_level"]; ok {
		t.Error("per-thread series exported while disabled")
	}
}

func TestThreadsCollectorCountsThreads(t *testing.T) {
	m := newManager(t)
	release := make(chan struct{})
	defer close(release)

	wait := func(ctx context.Context, _ any) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	var ids []osthread.ID
	for _, name := range []string{"a", "b", "c"} {
		id, err := m.BeginThread(wait, nil, 0, name, osthread.UndefinedCPUs)
		if err != nil {
			t.Fatalf("BeginThread: %v", err)
		}
		ids = append(ids, id)
	}
	m.Kill(ids[2])

	got := gather(t, NewThreadsCollector(m, true), "name")
	if got["rtthreads_registered_threads"] != 2 {
		t.Errorf("registered = %v, want 2", got["rtthreads_registered_threads"])
	}
	if got["rtthreads_registry_capacity"] != 64 {
		t.Errorf("capacity = %v, want 64", got["rtthreads_registry_capacity"])
	}
	if got["rtthreads_threads_started_total"] != 3 {
		t.Errorf("started = %v, want 3", got["rtthreads_threads_started_total"])
	}
	if got["rtthreads_threads_killed_total"] != 1 {
		t.Errorf("killed = %v, want 1", got["rtthreads_threads_killed_total"])
	}
	if _, ok := got["rtthreads_thread_priority_level/a"]; !ok {
		t.Error("per-thread series for a missing")
	}
	if _, ok := got["rtthreads_thread_priority_level/c"]; ok {
		t.Error("killed thread still exported")
	}
}
