package lexical

import (
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/corpusdb/model"
)

// BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// Hit is a scored keyword-search match.
type Hit struct {
	ID    model.ID
	Score float32
}

// Index is an in-memory inverted index over component text with BM25
// scoring. Posting sets are roaring bitmaps over dense local ids; the
// local↔entity id mapping is kept inside the index.
//
// The index is a projection, not source of truth: it is rebuilt from
// component rows on snapshot load.
type Index struct {
	mu  sync.RWMutex
	tok Tokenizer

	postings map[string]*roaring.Bitmap
	tf       map[string]map[uint32]int
	lengths  map[uint32]int
	total    int64

	next      uint32
	free      []uint32
	toLocal   map[model.ID]uint32
	fromLocal map[uint32]model.ID
}

// NewIndex creates an index using the given tokenizer. A nil tokenizer
// defaults to Whitespace.
func NewIndex(tok Tokenizer) *Index {
	if tok == nil {
		tok = Whitespace{}
	}
	return &Index{
		tok:       tok,
		postings:  make(map[string]*roaring.Bitmap),
		tf:        make(map[string]map[uint32]int),
		lengths:   make(map[uint32]int),
		toLocal:   make(map[model.ID]uint32),
		fromLocal: make(map[uint32]model.ID),
	}
}

// Tokenizer returns the tokenizer the index was built with.
func (ix *Index) Tokenizer() Tokenizer { return ix.tok }

// Add indexes text under id, replacing any previous entry, and returns
// the derived token sequence so callers can persist it alongside the
// entity.
func (ix *Index) Add(id model.ID, text string) []string {
	tokens := ix.tok.Tokenize(text)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Naive update: delete first, then re-add.
	if local, ok := ix.toLocal[id]; ok {
		ix.deleteLocked(id, local)
	}

	local := ix.allocLocked(id)
	ix.lengths[local] = len(tokens)
	ix.total += int64(len(tokens))

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	for t, n := range counts {
		bm, ok := ix.postings[t]
		if !ok {
			bm = roaring.New()
			ix.postings[t] = bm
			ix.tf[t] = make(map[uint32]int)
		}
		bm.Add(local)
		ix.tf[t][local] = n
	}

	return tokens
}

// Delete removes id from the index. Missing ids are a no-op.
func (ix *Index) Delete(id model.ID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if local, ok := ix.toLocal[id]; ok {
		ix.deleteLocked(id, local)
	}
}

// Reset drops all entries, keeping the tokenizer.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.postings = make(map[string]*roaring.Bitmap)
	ix.tf = make(map[string]map[uint32]int)
	ix.lengths = make(map[uint32]int)
	ix.total = 0
	ix.next = 0
	ix.free = nil
	ix.toLocal = make(map[model.ID]uint32)
	ix.fromLocal = make(map[uint32]model.ID)
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.toLocal)
}

// Search returns the top-k BM25-ranked matches for query.
func (ix *Index) Search(query string, k int) []Hit {
	tokens := ix.tok.Tokenize(query)
	if len(tokens) == 0 || k <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docCount := len(ix.toLocal)
	if docCount == 0 {
		return nil
	}
	avgLen := float64(ix.total) / float64(docCount)

	scores := make(map[uint32]float64)
	for _, t := range tokens {
		bm, ok := ix.postings[t]
		if !ok {
			continue
		}
		df := int(bm.GetCardinality())
		idf := math.Log(1 + (float64(docCount)-float64(df)+0.5)/(float64(df)+0.5))

		it := bm.Iterator()
		for it.HasNext() {
			local := it.Next()
			freq := float64(ix.tf[t][local])
			norm := 1 - b + b*float64(ix.lengths[local])/avgLen
			scores[local] += idf * (freq * (k1 + 1)) / (freq + k1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for local, s := range scores {
		hits = append(hits, Hit{ID: ix.fromLocal[local], Score: float32(s)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (ix *Index) allocLocked(id model.ID) uint32 {
	var local uint32
	if n := len(ix.free); n > 0 {
		local = ix.free[n-1]
		ix.free = ix.free[:n-1]
	} else {
		local = ix.next
		ix.next++
	}
	ix.toLocal[id] = local
	ix.fromLocal[local] = id
	return local
}

func (ix *Index) deleteLocked(id model.ID, local uint32) {
	for t, bm := range ix.postings {
		if bm.Contains(local) {
			bm.Remove(local)
			delete(ix.tf[t], local)
			if bm.IsEmpty() {
				delete(ix.postings, t)
				delete(ix.tf, t)
			}
		}
	}

	ix.total -= int64(ix.lengths[local])
	delete(ix.lengths, local)
	delete(ix.toLocal, id)
	delete(ix.fromLocal, local)
	ix.free = append(ix.free, local)
}
