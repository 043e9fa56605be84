package knn

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/hupe1980/corpusdb/model"
)

// Hit is a scored nearest-neighbor match.
type Hit struct {
	ID    model.ID
	Score float32
}

// Flat is a brute-force nearest-neighbor index over component
// embeddings. Exact, no build step, linear scan per query — the right
// trade-off at corpus scale, where per-document component counts are
// small and freshness beats query latency.
//
// Like the lexical index, Flat is a projection rebuilt from component
// rows on snapshot load.
type Flat struct {
	mu      sync.RWMutex
	metric  Metric
	dim     int // 0 until first vector
	vectors map[model.ID][]float32
}

// NewFlat creates an empty flat index with the given metric.
func NewFlat(metric Metric) *Flat {
	return &Flat{
		metric:  metric,
		vectors: make(map[model.ID][]float32),
	}
}

// Metric returns the configured metric.
func (f *Flat) Metric() Metric { return f.metric }

// Len returns the number of indexed vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Add indexes vector under id, replacing any previous entry. The first
// vector fixes the index dimension; later mismatches are rejected.
func (f *Flat) Add(id model.ID, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for %s", id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dim == 0 {
		f.dim = len(vector)
	} else if len(vector) != f.dim {
		return fmt.Errorf("dimension mismatch for %s: expected %d, got %d", id, f.dim, len(vector))
	}

	f.vectors[id] = slices.Clone(vector)
	return nil
}

// Delete removes id from the index. Missing ids are a no-op.
func (f *Flat) Delete(id model.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, id)
}

// Reset drops all vectors and the learned dimension.
func (f *Flat) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dim = 0
	f.vectors = make(map[model.ID][]float32)
}

// Get returns the indexed vector for id.
func (f *Flat) Get(id model.ID) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.vectors[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Search returns the k nearest neighbors of query.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	score, higherIsBetter, err := scoreFunc(f.metric)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.dim != 0 && len(query) != f.dim {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", f.dim, len(query))
	}

	hits := make([]Hit, 0, len(f.vectors))
	for id, v := range f.vectors {
		hits = append(hits, Hit{ID: id, Score: score(query, v)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			if higherIsBetter {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].Score < hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
