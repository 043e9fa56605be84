package store

import (
	"sync"

	"github.com/hupe1980/corpusdb/model"
)

// lockTable hands out one RWMutex per entity row. Writers that mutate
// a parent's denormalized id list (or a document's component set) must
// hold the parent's row lock exclusively for the whole
// read-modify-write, so two concurrent child mutations cannot each read
// a stale list and overwrite the other's change.
//
// Locks are created on demand and purged when the row is deleted.
type lockTable struct {
	mu    sync.Mutex
	locks map[model.ID]*sync.RWMutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[model.ID]*sync.RWMutex)}
}

// of returns the lock for id, creating it if needed.
func (lt *lockTable) of(id model.ID) *sync.RWMutex {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	l, ok := lt.locks[id]
	if !ok {
		l = &sync.RWMutex{}
		lt.locks[id] = l
	}
	return l
}

// purge drops the lock entry for a deleted row. The caller must still
// hold the lock; holders already blocked on it proceed normally, they
// just observe the row as gone.
func (lt *lockTable) purge(id model.ID) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	delete(lt.locks, id)
}
