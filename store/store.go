package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/corpusdb/model"
)

// Store is the durable row store for the four entity kinds. Every
// method is atomic; multi-row consistency (positions, id lists,
// aggregates) is maintained by the engine package on top, under the
// row locks this store hands out.
//
// Reads return deep copies and writes store deep copies, so callers
// can never alias internal state.
type Store struct {
	accounts   *table[*model.Account]
	kbs        *table[*model.KnowledgeBase]
	documents  *table[*model.Document]
	components *table[*model.Component]

	rows *lockTable

	// txMu is held shared by every open Tx and exclusively by
	// Export/Import, so a snapshot is always a consistent cut across
	// the four tables.
	txMu sync.RWMutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:   newTable[*model.Account](),
		kbs:        newTable[*model.KnowledgeBase](),
		documents:  newTable[*model.Document](),
		components: newTable[*model.Component](),
		rows:       newLockTable(),
	}
}

// RowLock returns the lock guarded mutations scoped to the given row
// must hold. IDs are UUIDs, so one registry serves all entity kinds.
func (s *Store) RowLock(id model.ID) *sync.RWMutex {
	return s.rows.of(id)
}

// --- Reads ---

// GetAccount returns the account or ErrNotFound.
func (s *Store) GetAccount(id model.ID) (*model.Account, error) {
	a, ok := s.accounts.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return a.Clone(), nil
}

// GetKnowledgeBase returns the knowledge base or ErrNotFound.
func (s *Store) GetKnowledgeBase(id model.ID) (*model.KnowledgeBase, error) {
	kb, ok := s.kbs.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: knowledge base %s", ErrNotFound, id)
	}
	return kb.Clone(), nil
}

// GetDocument returns the document or ErrNotFound.
func (s *Store) GetDocument(id model.ID) (*model.Document, error) {
	d, ok := s.documents.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return d.Clone(), nil
}

// GetComponent returns the component or ErrNotFound.
func (s *Store) GetComponent(id model.ID) (*model.Component, error) {
	c, ok := s.components.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: component %s", ErrNotFound, id)
	}
	return c.Clone(), nil
}

// --- Writes ---

// PutAccount creates or replaces an account row.
func (s *Store) PutAccount(a *model.Account) {
	s.accounts.set(a.ID, a.Clone())
}

// PutKnowledgeBase creates or replaces a knowledge base row. The owner
// account must exist.
func (s *Store) PutKnowledgeBase(kb *model.KnowledgeBase) error {
	if _, ok := s.accounts.get(kb.AccountID); !ok {
		return fmt.Errorf("%w: knowledge base %s references missing account %s", ErrConstraintViolation, kb.ID, kb.AccountID)
	}
	s.kbs.set(kb.ID, kb.Clone())
	return nil
}

// PutDocument creates or replaces a document row. The owning knowledge
// base must exist.
func (s *Store) PutDocument(d *model.Document) error {
	if _, ok := s.kbs.get(d.KnowledgeBaseID); !ok {
		return fmt.Errorf("%w: document %s references missing knowledge base %s", ErrConstraintViolation, d.ID, d.KnowledgeBaseID)
	}
	s.documents.set(d.ID, d.Clone())
	return nil
}

// PutComponent creates or replaces a component row. The owning document
// must exist and the kind must be valid.
func (s *Store) PutComponent(c *model.Component) error {
	if err := c.Kind.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrConstraintViolation, err)
	}
	if _, ok := s.documents.get(c.DocumentID); !ok {
		return fmt.Errorf("%w: component %s references missing document %s", ErrConstraintViolation, c.ID, c.DocumentID)
	}
	s.components.set(c.ID, c.Clone())
	return nil
}

// --- Queries ---

// ComponentsByDocument returns all live components of a document,
// ordered by ascending position.
func (s *Store) ComponentsByDocument(docID model.ID) []*model.Component {
	var out []*model.Component
	s.components.scan(func(_ model.ID, c *model.Component) bool {
		if c.DocumentID == docID {
			out = append(out, c.Clone())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// DocumentsByKnowledgeBase returns all documents owned by a knowledge base.
func (s *Store) DocumentsByKnowledgeBase(kbID model.ID) []*model.Document {
	var out []*model.Document
	s.documents.scan(func(_ model.ID, d *model.Document) bool {
		if d.KnowledgeBaseID == kbID {
			out = append(out, d.Clone())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// KnowledgeBasesByAccount returns all knowledge bases owned by an account.
func (s *Store) KnowledgeBasesByAccount(accountID model.ID) []*model.KnowledgeBase {
	var out []*model.KnowledgeBase
	s.kbs.scan(func(_ model.ID, kb *model.KnowledgeBase) bool {
		if kb.AccountID == accountID {
			out = append(out, kb.Clone())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MaxPosition returns the highest position in use under a document,
// or -1 when the document has no components.
func (s *Store) MaxPosition(docID model.ID) int {
	max := -1
	s.components.scan(func(_ model.ID, c *model.Component) bool {
		if c.DocumentID == docID && c.Position > max {
			max = c.Position
		}
		return true
	})
	return max
}

// PositionTaken reports whether pos is already held by a component of
// the document other than exclude.
func (s *Store) PositionTaken(docID model.ID, pos int, exclude model.ID) bool {
	taken := false
	s.components.scan(func(_ model.ID, c *model.Component) bool {
		if c.DocumentID == docID && c.Position == pos && c.ID != exclude {
			taken = true
			return false
		}
		return true
	})
	return taken
}

// Stats reports row counts per entity kind.
func (s *Store) Stats() Stats {
	return Stats{
		Accounts:       s.accounts.len(),
		KnowledgeBases: s.kbs.len(),
		Documents:      s.documents.len(),
		Components:     s.components.len(),
	}
}

// Stats is a point-in-time row count summary.
type Stats struct {
	Accounts       int
	KnowledgeBases int
	Documents      int
	Components     int
}

// State is a full export of the store, used for snapshots.
type State struct {
	Accounts       map[model.ID]*model.Account       `json:"accounts"`
	KnowledgeBases map[model.ID]*model.KnowledgeBase `json:"knowledge_bases"`
	Documents      map[model.ID]*model.Document      `json:"documents"`
	Components     map[model.ID]*model.Component     `json:"components"`
}

// Export copies every table into a State. It waits for in-flight
// transactions to finish and blocks new ones, so the exported state is
// a consistent cut.
func (s *Store) Export() *State {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	st := &State{
		Accounts:       make(map[model.ID]*model.Account),
		KnowledgeBases: make(map[model.ID]*model.KnowledgeBase),
		Documents:      make(map[model.ID]*model.Document),
		Components:     make(map[model.ID]*model.Component),
	}
	for id, a := range s.accounts.toMap() {
		st.Accounts[id] = a.Clone()
	}
	for id, kb := range s.kbs.toMap() {
		st.KnowledgeBases[id] = kb.Clone()
	}
	for id, d := range s.documents.toMap() {
		st.Documents[id] = d.Clone()
	}
	for id, c := range s.components.toMap() {
		st.Components[id] = c.Clone()
	}
	return st
}

// Import replaces the store contents with st.
func (s *Store) Import(st *State) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.accounts.clear()
	s.kbs.clear()
	s.documents.clear()
	s.components.clear()

	for id, a := range st.Accounts {
		s.accounts.set(id, a.Clone())
	}
	for id, kb := range st.KnowledgeBases {
		s.kbs.set(id, kb.Clone())
	}
	for id, d := range st.Documents {
		s.documents.set(id, d.Clone())
	}
	for id, c := range st.Components {
		s.components.set(id, c.Clone())
	}
}
