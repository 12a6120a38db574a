package threads

import (
	"context"
	"sync/atomic"
	"time"

	"rtthreads/internal/osthread"
	"rtthreads/internal/sync/semaphore"
	"rtthreads/internal/ticks"
)

// DefaultName is given to threads started without a name.
const DefaultName = "Unknown"

// ThreadFunction is the body of a facade thread. ctx is cancelled by Kill; the
// function decides whether and when to honour it.
type ThreadFunction func(ctx context.Context, arg any)

// ThreadInformation is the record kept for every thread started through the
// facade. It is owned by the creator until the trampoline registers it, by the
// Database while registered, and by the trampoline again once removed.
type ThreadInformation struct {
	name      string
	entry     ThreadFunction
	arg       any
	id        osthread.ID
	class     osthread.PriorityClass
	level     uint8
	cpus      osthread.CPUMask
	stackSize uint32
	created   time.Time

	// gate holds the trampoline until the creator has finished OS setup.
	gate    *semaphore.Semaphore
	aborted atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Info is a detached copy of a ThreadInformation, safe to keep after the thread
// has gone.
type Info struct {
	Name          string
	ID            osthread.ID
	PriorityClass osthread.PriorityClass
	PriorityLevel uint8
	CPUs          osthread.CPUMask
	StackSize     uint32
	Created       time.Time
}

// NewThreadInformation builds a record with its startup gate closed. An empty
// name becomes DefaultName and a nil entry runs nothing.
func NewThreadInformation(entry ThreadFunction, arg any, name string) (*ThreadInformation, error) {
	gate, err := semaphore.New(semaphore.Latching)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultName
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ThreadInformation{
		name:    name,
		entry:   entry,
		arg:     arg,
		class:   osthread.UnknownPriorityClass,
		created: time.Now(),
		gate:    gate,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (ti *ThreadInformation) Name() string { return ti.name }
func (ti *ThreadInformation) ThreadID() osthread.ID { return ti.id }
func (ti *ThreadInformation) PriorityClass() osthread.PriorityClass { return ti.class }
func (ti *ThreadInformation) PriorityLevel() uint8 { return ti.level }
func (ti *ThreadInformation) CPUs() osthread.CPUMask { return ti.cpus }
func (ti *ThreadInformation) StackSize() uint32 { return ti.stackSize }

// SetThreadID records the OS identifier once the thread runs.
func (ti *ThreadInformation) SetThreadID(id osthread.ID) { ti.id = id }

func (ti *ThreadInformation) SetPriorityClass(class osthread.PriorityClass) { ti.class = class }

// SetPriorityLevel stores level clamped to osthread.MaxPriorityLevel.
func (ti *ThreadInformation) SetPriorityLevel(level uint8) { ti.level = osthread.ClampLevel(level) }

// ThreadWait blocks the new thread on its startup gate.
func (ti *ThreadInformation) ThreadWait(timeout ticks.Timeout) error {
	return ti.gate.Take(timeout)
}

// ThreadPost releases the new thread.
func (ti *ThreadInformation) ThreadPost() error {
	return ti.gate.Set(1)
}

// Aborted reports whether the creator gave up on the thread before posting.
func (ti *ThreadInformation) Aborted() bool { return ti.aborted.Load() }

func (ti *ThreadInformation) abort() { ti.aborted.Store(true) }

// Context is cancelled when the thread is killed.
func (ti *ThreadInformation) Context() context.Context { return ti.ctx }

// UserThreadFunction runs the entry point on the calling thread.
func (ti *ThreadInformation) UserThreadFunction() {
	if ti.entry != nil {
		ti.entry(ti.ctx, ti.arg)
	}
}

// Snapshot copies the public fields.
func (ti *ThreadInformation) Snapshot() Info {
	return Info{
		Name:          ti.name,
		ID:            ti.id,
		PriorityClass: ti.class,
		PriorityLevel: ti.level,
		CPUs:          ti.cpus,
		StackSize:     ti.stackSize,
		Created:       ti.created,
	}
}

// release cancels the context and closes the gate. The user argument is not
// touched: it belongs to the caller of BeginThread.
func (ti *ThreadInformation) release() {
	ti.cancel()
	ti.gate.Close() // failures are reported by Close
}
