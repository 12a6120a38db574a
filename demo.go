package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	plog "github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rtthreads/internal/errs"
	"rtthreads/internal/logger"
	"rtthreads/internal/osthread"
	"rtthreads/internal/sync/semaphore"
	"rtthreads/internal/threads"
	"rtthreads/internal/ticks"
)

// roundTimeout bounds how long the coordinator waits for one worker.
const roundTimeout = ticks.Timeout(30_000)

var (
	demoRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtthreads_demo_rounds_total",
		Help: "Mutex counter rounds by outcome",
	}, []string{"outcome"})

	demoLastDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtthreads_demo_last_drift",
		Help: "Difference between the final and the expected counter in the last round",
	})

	demoRoundSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtthreads_demo_round_duration_seconds",
		Help:    "Wall time of a mutex counter round",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)

// counterDemo runs the mutex counter workload: even workers increment a shared
// counter and odd workers decrement it, each step inside a Mutex semaphore. A
// round that does not end at the expected value means mutual exclusion broke;
// with an even number of workers that value is zero.
//
// Every round owns its counter and semaphores. Workers of a round that timed
// out are told to stop and keep only their own round's state, which is closed
// once the last of them reports.
type counterDemo struct {
	manager    *threads.Manager
	workers    int
	iterations int
	timeout    ticks.Timeout

	draining sync.WaitGroup
	log      plog.Logger
}

// counterRound is the state shared by the workers of one round. Workers are
// released together through a Latching gate and report completion through a
// Counting semaphore.
type counterRound struct {
	iterations int

	mutex *semaphore.Semaphore
	start *semaphore.Semaphore
	done  *semaphore.Semaphore

	counter   int64 // guarded by mutex
	abandoned atomic.Bool
}

type workerArg struct {
	round *counterRound
	index int
	up    bool
}

func newCounterDemo(m *threads.Manager, workers, iterations int) (*counterDemo, error) {
	if workers <= 0 || iterations <= 0 {
		return nil, errs.Wrap(errs.ParametersError,
			fmt.Sprintf("demo needs positive workers and iterations, got %d and %d", workers, iterations), nil)
	}
	return &counterDemo{
		manager:    m,
		workers:    workers,
		iterations: iterations,
		timeout:    roundTimeout,
		log:        logger.NewLoggerWithContext("demo"),
	}, nil
}

func newCounterRound(iterations int) (*counterRound, error) {
	r := &counterRound{iterations: iterations}
	var err error
	if r.mutex, err = semaphore.New(semaphore.Mutex); err != nil {
		return nil, err
	}
	if r.start, err = semaphore.New(semaphore.Latching); err != nil {
		r.mutex.Close()
		return nil, err
	}
	if r.done, err = semaphore.New(semaphore.Counting); err != nil {
		r.mutex.Close()
		r.start.Close()
		return nil, err
	}
	return r, nil
}

func (r *counterRound) close() {
	r.mutex.Close()
	r.start.Close()
	r.done.Close()
}

// Run executes one round, then one every interval until ctx is done. A zero
// interval runs a single round.
func (d *counterDemo) Run(ctx context.Context, interval time.Duration) {
	for {
		if _, err := d.Round(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error().Err(err).Msg("Demo round failed")
		}
		if interval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// expected is the counter value a correct round of iterations ends with.
func (d *counterDemo) expected(iterations int) int64 {
	up := (d.workers + 1) / 2
	down := d.workers / 2
	return int64(up-down) * int64(iterations)
}

// Round starts the workers, releases them together and waits for all of them.
// It returns the final counter.
func (d *counterDemo) Round(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	began := time.Now()

	r, err := newCounterRound(d.iterations)
	if err != nil {
		return 0, err
	}

	started := 0
	for i := 0; i < d.workers; i++ {
		arg := &workerArg{round: r, index: i, up: i%2 == 0}
		_, err := d.manager.BeginThread(d.worker, arg, 0, fmt.Sprintf("counter-%d", i), osthread.UndefinedCPUs)
		if err != nil {
			d.log.Error().Err(err).Int("worker", i).Msg("Failed to start worker")
			break
		}
		started++
	}
	// Workers that did start must not stay parked on the gate.
	r.start.Set(1)

	for i := 0; i < started; i++ {
		if err := r.done.Take(d.timeout); err != nil {
			demoRounds.WithLabelValues("timeout").Inc()
			d.abandon(r, started-i)
			return 0, fmt.Errorf("waiting for worker %d of %d: %w", i+1, started, err)
		}
	}
	defer r.close()

	if started < d.workers {
		demoRounds.WithLabelValues("incomplete").Inc()
		return 0, errs.Wrap(errs.OSError, fmt.Sprintf("only %d of %d workers started", started, d.workers), nil)
	}

	if err := ctx.Err(); err != nil {
		// Killed workers stop early and leave a partial count.
		demoRounds.WithLabelValues("cancelled").Inc()
		return 0, err
	}

	// Every worker has released the mutex and reported, so the counter is quiescent.
	final := r.counter
	want := d.expected(r.iterations)
	elapsed := time.Since(began)
	demoLastDrift.Set(float64(final - want))
	demoRoundSeconds.Observe(elapsed.Seconds())

	if final != want {
		demoRounds.WithLabelValues("violation").Inc()
		d.log.Error().Int64("counter", final).Int64("expected", want).Msg("Mutual exclusion violated")
		return final, fmt.Errorf("counter ended at %d, expected %d", final, want)
	}
	demoRounds.WithLabelValues("ok").Inc()
	d.log.Info().
		Int("workers", d.workers).
		Int("iterations", r.iterations).
		Dur("elapsed", elapsed).
		Msg("Demo round completed")
	return final, nil
}

// abandon stops the workers of a timed out round and closes its semaphores
// once the pending ones have reported.
func (d *counterDemo) abandon(r *counterRound, pending int) {
	r.abandoned.Store(true)
	d.draining.Add(1)
	go func() {
		defer d.draining.Done()
		for i := 0; i < pending; i++ {
			if err := r.done.Take(ticks.Infinite); err != nil {
				d.log.Error().Err(err).Msg("Abandoned round could not drain")
				return
			}
		}
		r.close()
		d.log.Debug().Int("workers", pending).Msg("Abandoned round drained")
	}()
}

func (d *counterDemo) worker(ctx context.Context, a any) {
	arg := a.(*workerArg)
	r := arg.round
	defer r.done.Set(1)

	if err := r.start.Take(ticks.Infinite); err != nil {
		d.log.Error().Err(err).Int("worker", arg.index).Msg("Start gate failed")
		return
	}
	for i := 0; i < r.iterations; i++ {
		if ctx.Err() != nil || r.abandoned.Load() {
			return
		}
		if err := r.mutex.Take(ticks.Infinite); err != nil {
			d.log.Error().Err(err).Int("worker", arg.index).Msg("Mutex take failed")
			return
		}
		if arg.up {
			r.counter++
		} else {
			r.counter--
		}
		if err := r.mutex.Set(1); err != nil {
			d.log.Error().Err(err).Int("worker", arg.index).Msg("Mutex release failed")
			return
		}
	}
}

// Close waits until the workers of abandoned rounds have drained or ctx is done.
func (d *counterDemo) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.draining.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
