package store

import (
	"maps"
	"sync"

	"github.com/hupe1980/corpusdb/model"
)

// table is an in-memory row set keyed by entity ID. Each method is
// atomic on its own; multi-row invariants are the caller's job and are
// protected by row locks (see locks.go).
type table[T any] struct {
	mu   sync.RWMutex
	rows map[model.ID]T
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[model.ID]T)}
}

func (t *table[T]) get(id model.ID) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) set(id model.ID, row T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows[id] = row
}

func (t *table[T]) delete(id model.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	return true
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.rows)
}

// scan calls fn for every row. fn must not mutate the table.
func (t *table[T]) scan(fn func(id model.ID, row T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for id, row := range t.rows {
		if !fn(id, row) {
			return
		}
	}
}

// toMap returns a shallow copy of the row map (for snapshots).
func (t *table[T]) toMap() map[model.ID]T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[model.ID]T, len(t.rows))
	maps.Copy(out, t.rows)
	return out
}

func (t *table[T]) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = make(map[model.ID]T)
}
