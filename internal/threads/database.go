package threads

import (
	"fmt"

	"github.com/phuslu/log"

	"rtthreads/internal/errs"
	"rtthreads/internal/logger"
	"rtthreads/internal/maps"
	"rtthreads/internal/osthread"
	"rtthreads/internal/sync/fastmutex"
	"rtthreads/internal/ticks"
)

// granularity is the number of slots added each time the table grows.
const granularity = 64

// Database is the registry of live facade threads.
//
// Records live in a slot table so that index based lookups follow registration
// order, modulo slots freed by earlier removals. A concurrent map resolves an
// identifier to its slot without scanning.
//
// The methods that read or mutate the table expect the caller to hold the lock
// taken with Lock; Count and Snapshot take it themselves.
type Database struct {
	mu fastmutex.FastPollingMutexSem

	entries    []*ThreadInformation
	nOfEntries int
	maxEntries int // 0 means unbounded

	index maps.ConcurrentMap[osthread.ID, int]
	log   log.Logger
}

// NewDatabase returns an empty registry. maxEntries caps the number of
// registered threads (0 for no cap) and indexMap picks the id index
// implementation (see maps.New).
func NewDatabase(maxEntries int, indexMap string) (*Database, error) {
	if maxEntries < 0 {
		return nil, errs.Wrap(errs.ParametersError, fmt.Sprintf("negative registry capacity %d", maxEntries), nil)
	}
	index, err := maps.New[osthread.ID, int](indexMap)
	if err != nil {
		return nil, errs.Wrap(errs.ParametersError, "thread index", err)
	}
	return &Database{
		maxEntries: maxEntries,
		index:      index,
		log:        logger.NewLoggerWithContext("threads_db"),
	}, nil
}

// Lock acquires the registry lock. Hold it only for a few operations.
func (db *Database) Lock(timeout ticks.Timeout) error {
	if err := db.mu.Lock(timeout); err != nil {
		return errs.Wrap(errs.Timeout, "threads database lock", err)
	}
	return nil
}

// UnLock releases the registry lock.
func (db *Database) UnLock() {
	db.mu.Unlock()
}

// allocMore makes room for one more entry, growing the table by granularity
// slots when it is full. Existing slot indices are preserved.
func (db *Database) allocMore() bool {
	if db.maxEntries > 0 && db.nOfEntries >= db.maxEntries {
		return false
	}
	if db.nOfEntries < len(db.entries) {
		return true
	}
	grown := make([]*ThreadInformation, len(db.entries)+granularity)
	copy(grown, db.entries)
	db.entries = grown
	return true
}

// NewEntry registers info under its thread id. It fails without changing
// anything when the id is invalid or already present, or when the table
// cannot grow.
func (db *Database) NewEntry(info *ThreadInformation) bool {
	if info == nil || info.id == osthread.InvalidID {
		return false
	}
	if _, dup := db.index.Load(info.id); dup {
		db.log.Warn().Uint64("tid", uint64(info.id)).Msg("Thread id already registered")
		return false
	}
	if !db.allocMore() {
		db.log.Warn().Int("entries", db.nOfEntries).Int("max", db.maxEntries).Msg("Thread registry is full")
		return false
	}
	for i, slot := range db.entries {
		if slot == nil {
			db.entries[i] = info
			db.index.Store(info.id, i)
			db.nOfEntries++
			db.log.Trace().Uint64("tid", uint64(info.id)).Int("slot", i).Str("name", info.name).Msg("Thread registered")
			return true
		}
	}
	// allocMore guarantees a free slot.
	return false
}

// RemoveEntry unregisters id and hands its record back to the caller. It
// returns nil when id is not registered. Removing the last entry frees the
// table.
func (db *Database) RemoveEntry(id osthread.ID) *ThreadInformation {
	slot, ok := db.index.LoadAndDelete(id)
	if !ok {
		return nil
	}
	info := db.entries[slot]
	db.entries[slot] = nil
	db.nOfEntries--
	if db.nOfEntries == 0 {
		db.entries = nil
	}
	db.log.Trace().Uint64("tid", uint64(id)).Int("slot", slot).Msg("Thread unregistered")
	return info
}

// GetThreadInformation returns the registered record for id, or nil. The
// record stays owned by the database.
func (db *Database) GetThreadInformation(id osthread.ID) *ThreadInformation {
	slot, ok := db.index.Load(id)
	if !ok {
		return nil
	}
	return db.entries[slot]
}

// nth returns the n-th registered record in slot order.
func (db *Database) nth(n int) *ThreadInformation {
	if n < 0 || n >= db.nOfEntries {
		return nil
	}
	for _, info := range db.entries {
		if info == nil {
			continue
		}
		if n == 0 {
			return info
		}
		n--
	}
	return nil
}

// GetInfoIndex copies the n-th registered record.
func (db *Database) GetInfoIndex(n int) (Info, bool) {
	info := db.nth(n)
	if info == nil {
		return Info{}, false
	}
	return info.Snapshot(), true
}

// GetInfo copies the record registered under id.
func (db *Database) GetInfo(id osthread.ID) (Info, bool) {
	info := db.GetThreadInformation(id)
	if info == nil {
		return Info{}, false
	}
	return info.Snapshot(), true
}

// GetThreadID returns the id of the n-th registered thread, or osthread.InvalidID.
func (db *Database) GetThreadID(n int) osthread.ID {
	info := db.nth(n)
	if info == nil {
		return osthread.InvalidID
	}
	return info.id
}

// Find returns the id of the first thread, in slot order, named name.
func (db *Database) Find(name string) osthread.ID {
	for _, info := range db.entries {
		if info != nil && info.name == name {
			return info.id
		}
	}
	return osthread.InvalidID
}

// NumberOfThreads returns the number of registered threads.
func (db *Database) NumberOfThreads() int {
	return db.nOfEntries
}

// Capacity returns the number of allocated slots.
func (db *Database) Capacity() int {
	return len(db.entries)
}

// Count is NumberOfThreads and Capacity under the lock.
func (db *Database) Count() (threads, capacity int, err error) {
	if err := db.Lock(ticks.Infinite); err != nil {
		return 0, 0, err
	}
	defer db.UnLock()
	return db.nOfEntries, len(db.entries), nil
}

// Snapshot copies every registered record in slot order, together with the
// capacity of the slot table, in one locked section.
func (db *Database) Snapshot() (infos []Info, capacity int, err error) {
	if err := db.Lock(ticks.Infinite); err != nil {
		return nil, 0, err
	}
	defer db.UnLock()
	infos = make([]Info, 0, db.nOfEntries)
	for _, info := range db.entries {
		if info != nil {
			infos = append(infos, info.Snapshot())
		}
	}
	return infos, len(db.entries), nil
}
