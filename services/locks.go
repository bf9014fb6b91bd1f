package services

import "sync"

// LockTable serializes bracket mutations per tournament. The tournament and
// match services share one table so a start, a score report, and an undo can
// never interleave on the same bracket. Entries are refcounted so the map
// does not grow with dead tournaments.
type LockTable struct {
	mu    sync.Mutex
	locks map[int]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[int]*lockEntry)}
}

func (k *LockTable) Lock(id int) {
	k.mu.Lock()
	entry, ok := k.locks[id]
	if !ok {
		entry = &lockEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *LockTable) Unlock(id int) {
	k.mu.Lock()
	entry := k.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, id)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}
