// Package threads starts and tracks named OS threads with a priority class,
// a CPU set and a startup handshake.
//
// Each facade thread is a goroutine locked to its OS thread for its whole life.
// The goroutine never unlocks, so the runtime retires the OS thread when the
// entry point returns and the thread identifier really names one kernel thread.
package threads

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/phuslu/log"

	"rtthreads/internal/config"
	"rtthreads/internal/errs"
	"rtthreads/internal/logger"
	"rtthreads/internal/osthread"
	"rtthreads/internal/ticks"
)

// Options configures a Manager.
type Options struct {
	// DefaultStackSize is recorded for threads started with a zero stack size.
	// Goroutine stacks grow on demand; the value is informational.
	DefaultStackSize uint32
	// DefaultCPUs is applied to threads started without a mask. When it is
	// UndefinedCPUs as well, new threads keep the process affinity.
	DefaultCPUs osthread.CPUMask
	// StartupTimeout bounds how long a new thread waits for the registry lock.
	StartupTimeout ticks.Timeout
	// MaxThreads caps the registry, 0 for no cap.
	MaxThreads int
	// IndexMap selects the id index implementation, see maps.New.
	IndexMap string
	// Backend defaults to osthread.Default().
	Backend osthread.Backend
}

// DefaultOptions mirrors config.DefaultConfig().Threads.
func DefaultOptions() Options {
	opts, _ := OptionsFromConfig(config.DefaultConfig().Threads)
	return opts
}

// OptionsFromConfig converts the [threads] section.
func OptionsFromConfig(cfg config.ThreadsConfig) (Options, error) {
	mask, err := config.ParseCPUMask(cfg.DefaultCPUs)
	if err != nil {
		return Options{}, errs.Wrap(errs.ParametersError, "threads.default_cpus", err)
	}
	return Options{
		DefaultStackSize: cfg.DefaultStackSize,
		DefaultCPUs:      osthread.CPUMask(mask),
		StartupTimeout:   ticks.Milliseconds(cfg.StartupTimeoutMs),
		MaxThreads:       cfg.MaxThreads,
		IndexMap:         cfg.IndexMap,
	}, nil
}

// Manager is the thread facade. It owns the registry of the threads it
// started; several managers may coexist.
type Manager struct {
	db      *Database
	backend osthread.Backend
	opts    Options
	diag    *Diagnostics
	log     log.Logger

	// running tracks trampolines, registered or not.
	running sync.WaitGroup
}

// New builds a Manager with an empty registry.
func New(opts Options) (*Manager, error) {
	db, err := NewDatabase(opts.MaxThreads, opts.IndexMap)
	if err != nil {
		return nil, err
	}
	if opts.Backend == nil {
		opts.Backend = osthread.Default()
	}
	return &Manager{
		db:      db,
		backend: opts.Backend,
		opts:    opts,
		diag:    newDiagnostics(),
		log:     logger.NewLoggerWithContext("threads"),
	}, nil
}

// Database exposes the registry for multi-step inspection under its lock.
func (m *Manager) Database() *Database { return m.db }

// Diagnostics returns the lifecycle counters.
func (m *Manager) Diagnostics() *Diagnostics { return m.diag }

// Logger returns the component logger.
func (m *Manager) Logger() *log.Logger { return &m.log }

// BeginThread starts a thread running entry(ctx, arg) and returns its id once
// the thread is registered and configured. A zero stackSize or an
// UndefinedCPUs mask selects the manager defaults and an empty name becomes
// DefaultName.
//
// The new thread registers itself, applies the baseline Normal/0 priority and
// then waits while the caller applies the CPU mask and the name. If that setup
// fails the thread unregisters without running entry and BeginThread returns
// osthread.InvalidID with the error.
func (m *Manager) BeginThread(entry ThreadFunction, arg any, stackSize uint32, name string, cpus osthread.CPUMask) (osthread.ID, error) {
	info, err := NewThreadInformation(entry, arg, name)
	if err != nil {
		m.diag.recordFailed()
		return osthread.InvalidID, err
	}
	if stackSize == 0 {
		stackSize = m.opts.DefaultStackSize
	}
	if cpus == osthread.UndefinedCPUs {
		cpus = m.opts.DefaultCPUs
	}
	info.stackSize = stackSize
	info.cpus = cpus

	registered := make(chan error, 1)
	m.running.Add(1)
	go m.trampoline(info, registered)

	if err := <-registered; err != nil {
		m.diag.recordFailed()
		info.release()
		m.log.Error().Err(err).Str("name", info.name).Msg("Thread could not register")
		return osthread.InvalidID, err
	}

	id := info.id
	if err := m.configure(info); err != nil {
		info.abort()
		info.ThreadPost()
		m.diag.recordFailed()
		m.log.Error().Err(err).Uint64("tid", uint64(id)).Str("name", info.name).Msg("Thread setup failed, aborting")
		return osthread.InvalidID, err
	}
	if err := info.ThreadPost(); err != nil {
		m.diag.recordFailed()
		return osthread.InvalidID, err
	}

	m.diag.recordStarted()
	m.log.Debug().
		Uint64("tid", uint64(id)).
		Str("name", info.name).
		Str("cpus", info.cpus.String()).
		Uint32("stack_size", info.stackSize).
		Msg("Thread started")
	return id, nil
}

// configure runs on the creator once the new thread is registered.
func (m *Manager) configure(info *ThreadInformation) error {
	if info.cpus == osthread.UndefinedCPUs {
		mask, err := m.backend.Affinity(info.id)
		if err != nil {
			return err
		}
		if err := m.db.Lock(m.opts.StartupTimeout); err != nil {
			return err
		}
		info.cpus = mask
		m.db.UnLock()
	} else if err := m.backend.SetAffinity(info.id, info.cpus); err != nil {
		return err
	}

	// The name is cosmetic; some environments forbid renaming threads.
	if err := m.backend.SetName(info.id, info.name); err != nil {
		errs.ReportErr(err, fmt.Sprintf("could not name thread %d %q", info.id, info.name))
	}
	return nil
}

// trampoline is the first code run by a facade thread. registered receives
// exactly one value: nil once the record is in the database.
func (m *Manager) trampoline(info *ThreadInformation, registered chan<- error) {
	defer m.running.Done()

	// Never unlocked: the OS thread exits with this goroutine.
	runtime.LockOSThread()

	info.SetThreadID(m.backend.Current())
	if err := m.db.Lock(m.opts.StartupTimeout); err != nil {
		registered <- err
		return
	}
	ok := m.db.NewEntry(info)
	m.db.UnLock()
	if !ok {
		registered <- errs.Wrap(errs.InvalidOperation,
			fmt.Sprintf("thread %d %q could not be registered", info.id, info.name), nil)
		return
	}

	if err := m.SetPriority(info.id, osthread.NormalPriorityClass, 0); err != nil {
		errs.ReportErr(err, "could not apply the baseline thread priority")
	}
	registered <- nil

	if err := info.ThreadWait(ticks.Infinite); err != nil || info.Aborted() {
		m.unregister(info, false)
		return
	}
	info.UserThreadFunction()
	m.unregister(info, true)
}

// unregister drops the record after the entry point returned or the start was
// aborted. A killed thread is already gone from the registry.
func (m *Manager) unregister(info *ThreadInformation, ran bool) {
	defer info.release()

	if err := m.db.Lock(ticks.Infinite); err != nil {
		errs.ReportErr(err, "thread could not unregister")
		return
	}
	removed := m.db.RemoveEntry(info.id)
	if removed != nil && ran {
		// Counted under the lock so a reader that sees the registry shrink
		// also sees the counter.
		m.diag.recordTerminated()
	}
	m.db.UnLock()

	if removed == nil {
		m.log.Debug().Uint64("tid", uint64(info.id)).Str("name", info.name).Msg("Killed thread returned")
		return
	}
	if ran {
		m.log.Debug().Uint64("tid", uint64(info.id)).Str("name", info.name).Msg("Thread terminated")
	}
}

// Kill unregisters a live thread and cancels its context. The entry point
// keeps running until it observes the cancellation; nothing guarantees it does.
func (m *Manager) Kill(id osthread.ID) bool {
	if !m.IsAlive(id) {
		return false
	}
	if err := m.db.Lock(ticks.Infinite); err != nil {
		errs.ReportErr(err, "kill")
		return false
	}
	info := m.db.RemoveEntry(id)
	if info != nil {
		m.diag.recordKilled()
	}
	m.db.UnLock()
	if info == nil {
		return false
	}

	info.cancel()
	m.log.Info().Uint64("tid", uint64(id)).Str("name", info.name).Msg("Thread killed")
	return true
}

// IsAlive reports whether id is registered and the OS still runs the thread.
func (m *Manager) IsAlive(id osthread.ID) bool {
	if id == osthread.InvalidID {
		return false
	}
	if err := m.db.Lock(ticks.Infinite); err != nil {
		return false
	}
	registered := m.db.GetThreadInformation(id) != nil
	m.db.UnLock()
	return registered && m.backend.IsAlive(id)
}

// SetPriority records and applies a priority class and level. The level is
// clamped to osthread.MaxPriorityLevel. When the OS refuses, the record keeps
// its previous values and the error is returned.
func (m *Manager) SetPriority(id osthread.ID, class osthread.PriorityClass, level uint8) error {
	if err := m.db.Lock(ticks.Infinite); err != nil {
		return err
	}
	defer m.db.UnLock()

	info := m.db.GetThreadInformation(id)
	if info == nil {
		return errs.Wrap(errs.ParametersError, fmt.Sprintf("thread %d is not registered", id), nil)
	}

	prevClass, prevLevel := info.class, info.level
	info.SetPriorityClass(class)
	info.SetPriorityLevel(level)
	if err := m.backend.SetPriority(id, info.class, info.level); err != nil {
		info.SetPriorityClass(prevClass)
		info.SetPriorityLevel(prevLevel)
		return err
	}
	return nil
}

// GetPriorityClass returns the recorded class, or UnknownPriorityClass.
func (m *Manager) GetPriorityClass(id osthread.ID) osthread.PriorityClass {
	if err := m.db.Lock(ticks.Infinite); err != nil {
		return osthread.UnknownPriorityClass
	}
	defer m.db.UnLock()
	if info := m.db.GetThreadInformation(id); info != nil {
		return info.class
	}
	return osthread.UnknownPriorityClass
}

// GetPriorityLevel returns the recorded level, or 0.
func (m *Manager) GetPriorityLevel(id osthread.ID) uint8 {
	if err := m.db.Lock(ticks.Infinite); err != nil {
		return 0
	}
	defer m.db.UnLock()
	if info := m.db.GetThreadInformation(id); info != nil {
		return info.level
	}
	return 0
}

// FindByName returns the first registered thread named name.
func (m *Manager) FindByName(name string) osthread.ID {
	if name == "" {
		errs.ReportError(errs.ParametersError, "FindByName called with an empty name")
		return osthread.InvalidID
	}
	if err := m.db.Lock(ticks.Infinite); err != nil {
		return osthread.InvalidID
	}
	defer m.db.UnLock()
	return m.db.Find(name)
}

// FindByIndex returns the id of the n-th registered thread.
func (m *Manager) FindByIndex(n int) osthread.ID {
	if err := m.db.Lock(ticks.Infinite); err != nil {
		return osthread.InvalidID
	}
	defer m.db.UnLock()
	return m.db.GetThreadID(n)
}

// NumberOfThreads returns the number of registered threads.
func (m *Manager) NumberOfThreads() int {
	n, _, err := m.db.Count()
	if err != nil {
		return 0
	}
	return n
}

// GetThreadInfoCopy copies the record of the n-th registered thread.
func (m *Manager) GetThreadInfoCopy(n int) (Info, bool) {
	if err := m.db.Lock(ticks.Infinite); err != nil {
		return Info{}, false
	}
	defer m.db.UnLock()
	return m.db.GetInfoIndex(n)
}

// GetThreadInfoCopyByID copies the record registered under id.
func (m *Manager) GetThreadInfoCopyByID(id osthread.ID) (Info, bool) {
	if err := m.db.Lock(ticks.Infinite); err != nil {
		return Info{}, false
	}
	defer m.db.UnLock()
	return m.db.GetInfo(id)
}

// Name returns the name of a registered thread, or "".
func (m *Manager) Name(id osthread.ID) string {
	info, ok := m.GetThreadInfoCopyByID(id)
	if !ok {
		return ""
	}
	return info.Name
}

// GetCPUs asks the OS which CPUs a registered thread may run on.
func (m *Manager) GetCPUs(id osthread.ID) (osthread.CPUMask, error) {
	if !m.IsAlive(id) {
		return osthread.UndefinedCPUs, errs.Wrap(errs.ParametersError, fmt.Sprintf("thread %d is not alive", id), nil)
	}
	return m.backend.Affinity(id)
}

// Id returns the identifier of the calling thread. It is only meaningful on a
// goroutine locked to its OS thread, which includes every facade thread.
func (m *Manager) Id() osthread.ID {
	return m.backend.Current()
}

// Shutdown kills every registered thread and waits until all trampolines have
// returned or ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	infos, _, err := m.db.Snapshot()
	if err != nil {
		return err
	}
	for _, info := range infos {
		m.Kill(info.ID)
	}

	done := make(chan struct{})
	go func() {
		m.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.log.Info().Int("killed", len(infos)).Msg("Thread manager shut down")
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.Timeout, "threads still running at shutdown", ctx.Err())
	}
}
