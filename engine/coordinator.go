package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/corpusdb/knn"
	"github.com/hupe1980/corpusdb/lexical"
	"github.com/hupe1980/corpusdb/model"
	"github.com/hupe1980/corpusdb/store"
)

// Coordinator sequences the reactive components — position allocation,
// referential sync, content aggregation and search indexing — as one
// atomic unit per mutation, so intermediate states are never externally
// observable.
//
// For every component mutation the order is: resolve position, persist
// the component row, derive the search index, rebuild the document
// aggregate, propagate id-list changes upward. Any failed stage rolls
// the whole unit back via the store's undo journal; the relevant row
// locks are held end to end, which is what hides in-flight state from
// readers.
//
// Lock discipline: parents before children (account → knowledge base →
// document), ascending id order within one kind. Component mutations
// hold only the owning document's lock, so ingestion into different
// documents proceeds without contention.
type Coordinator struct {
	store *store.Store
	lex   *lexical.Index
	vec   *knn.Flat
	log   *slog.Logger
	now   func() time.Time
}

// New creates a coordinator over the given store and indexes. A nil
// logger disables logging.
func New(s *store.Store, lex *lexical.Index, vec *knn.Flat, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		store: s,
		lex:   lex,
		vec:   vec,
		log:   logger,
		now:   time.Now,
	}
}

// Store exposes the underlying entity store (read paths, snapshots).
func (c *Coordinator) Store() *store.Store { return c.store }

// Lexical exposes the keyword index.
func (c *Coordinator) Lexical() *lexical.Index { return c.lex }

// Vector exposes the nearest-neighbor index.
func (c *Coordinator) Vector() *knn.Flat { return c.vec }

// ComponentInput describes a component to ingest. ID is optional and
// minted when empty. Position is optional; conflicting or absent
// positions are repaired to end-of-document.
type ComponentInput struct {
	ID          model.ID
	Kind        model.Kind
	Text        string
	Embedding   []float32
	Position    *int
	PhotoURL    string
	PhotoBase64 string
}

// ComponentUpdate describes a partial component update. Nil fields are
// left unchanged. DocumentID re-parents the component. An empty
// non-nil Embedding clears the stored embedding and removes it from
// the vector index.
type ComponentUpdate struct {
	Text       *string
	Embedding  []float32
	Position   *int
	DocumentID *model.ID
}

// searchSource builds the text the search index is derived from: the
// owning document's name concatenated with the component text.
func searchSource(docName, text string) string {
	if text == "" {
		return docName
	}
	return docName + " " + text
}

// IngestComponent creates a component under a document, deriving all
// dependent state in the same atomic unit.
func (c *Coordinator) IngestComponent(ctx context.Context, docID model.ID, in ComponentInput) (model.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	lock := c.store.RowLock(docID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := c.store.GetDocument(docID)
	if err != nil {
		return "", err
	}

	id := in.ID
	if id == "" {
		id = model.NewID()
	} else if _, err := c.store.GetComponent(id); err == nil {
		return "", fmt.Errorf("%w: component %s already exists", store.ErrConstraintViolation, id)
	}

	tx := c.store.Begin()
	defer tx.Rollback()

	now := c.now()
	comp := &model.Component{
		ID:          id,
		DocumentID:  docID,
		Position:    c.resolvePosition(docID, in.Position, id),
		Kind:        in.Kind,
		Text:        in.Text,
		Embedding:   in.Embedding,
		PhotoURL:    in.PhotoURL,
		PhotoBase64: in.PhotoBase64,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	comp.SearchTokens = c.indexText(tx, id, searchSource(doc.Name, in.Text), nil)

	if err := tx.PutComponent(comp); err != nil {
		return "", err
	}
	if err := c.indexVector(tx, id, in.Embedding, nil); err != nil {
		return "", err
	}
	if err := c.rebuildDocument(tx, docID); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tx.Commit()

	c.log.Debug("component ingested",
		"component_id", string(id),
		"document_id", string(docID),
		"kind", string(comp.Kind),
		"position", comp.Position,
	)
	return id, nil
}

// UpdateComponent applies a partial update, repairing positions,
// refreshing the search index and rebuilding the affected document
// aggregates. Re-parenting moves the component between documents.
func (c *Coordinator) UpdateComponent(ctx context.Context, id model.ID, upd ComponentUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prev, unlock, err := c.lockComponentDocs(id, upd.DocumentID)
	if err != nil {
		return err
	}
	defer unlock()

	oldDocID := prev.DocumentID
	newDocID := oldDocID
	if upd.DocumentID != nil {
		newDocID = *upd.DocumentID
	}
	moved := newDocID != oldDocID

	oldDoc, err := c.store.GetDocument(oldDocID)
	if err != nil {
		return err
	}
	newDoc := oldDoc
	if moved {
		if newDoc, err = c.store.GetDocument(newDocID); err != nil {
			return fmt.Errorf("%w: component %s references missing document %s", store.ErrConstraintViolation, id, newDocID)
		}
	}

	tx := c.store.Begin()
	defer tx.Rollback()

	next := prev.Clone()
	next.DocumentID = newDocID
	if upd.Text != nil {
		next.Text = *upd.Text
	}
	if upd.Embedding != nil {
		next.Embedding = upd.Embedding
		if len(upd.Embedding) == 0 {
			next.Embedding = nil
		}
	}

	requested := upd.Position
	if requested == nil && moved {
		p := prev.Position
		requested = &p
	}
	if requested != nil {
		next.Position = c.resolvePosition(newDocID, requested, id)
	}

	oldSource := searchSource(oldDoc.Name, prev.Text)
	newSource := searchSource(newDoc.Name, next.Text)
	if newSource != oldSource {
		next.SearchTokens = c.indexText(tx, id, newSource, &oldSource)
	}

	next.UpdatedAt = c.now()
	if err := tx.PutComponent(next); err != nil {
		return err
	}
	if upd.Embedding != nil {
		if len(upd.Embedding) == 0 {
			c.unindexVector(tx, id)
		} else if err := c.indexVector(tx, id, upd.Embedding, prev.Embedding); err != nil {
			return err
		}
	}

	if moved {
		if err := c.rebuildDocument(tx, oldDocID); err != nil {
			return err
		}
	}
	if err := c.rebuildDocument(tx, newDocID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.Commit()

	c.log.Debug("component updated",
		"component_id", string(id),
		"document_id", string(newDocID),
		"moved", moved,
	)
	return nil
}

// DeleteComponent removes a component and rebuilds the owning document
// aggregate. The target must exist; cascades use the store directly.
func (c *Coordinator) DeleteComponent(ctx context.Context, id model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prev, unlock, err := c.lockComponentDocs(id, nil)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := c.store.GetDocument(prev.DocumentID)
	if err != nil {
		return err
	}

	tx := c.store.Begin()
	defer tx.Rollback()

	c.unindexComponent(tx, prev, doc.Name)
	tx.DeleteComponent(id)

	if err := c.rebuildDocument(tx, prev.DocumentID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.Commit()

	c.log.Debug("component deleted",
		"component_id", string(id),
		"document_id", string(prev.DocumentID),
	)
	return nil
}

// lockComponentDocs locks the document(s) a component mutation touches
// and returns a stable read of the component. Because the owning
// document can change between the unlocked read and the lock
// acquisition, it re-reads and retries until the owner is stable.
func (c *Coordinator) lockComponentDocs(id model.ID, target *model.ID) (*model.Component, func(), error) {
	for {
		comp, err := c.store.GetComponent(id)
		if err != nil {
			return nil, nil, err
		}

		a := comp.DocumentID
		b := a
		if target != nil {
			b = *target
		}

		// Ascending id order when two documents are involved.
		first, second := a, b
		if second < first {
			first, second = second, first
		}

		l1 := c.store.RowLock(first)
		l1.Lock()
		var l2 interface{ Unlock() }
		if second != first {
			ll := c.store.RowLock(second)
			ll.Lock()
			l2 = ll
		}
		unlock := func() {
			if l2 != nil {
				l2.Unlock()
			}
			l1.Unlock()
		}

		// Re-read under lock; retry if the owner moved meanwhile.
		cur, err := c.store.GetComponent(id)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if cur.DocumentID != comp.DocumentID {
			unlock()
			continue
		}
		return cur, unlock, nil
	}
}

// indexText replaces the lexical entry for id and registers the
// compensation: restore the previous source on rollback, or drop the
// entry if there was none.
func (c *Coordinator) indexText(tx *store.Tx, id model.ID, source string, prev *string) []string {
	tokens := c.lex.Add(id, source)
	if prev != nil {
		old := *prev
		tx.Defer(func() { c.lex.Add(id, old) })
	} else {
		tx.Defer(func() { c.lex.Delete(id) })
	}
	return tokens
}

// indexVector replaces the vector entry for id with undo. An empty
// vector leaves the index untouched (embedding unchanged / absent).
func (c *Coordinator) indexVector(tx *store.Tx, id model.ID, vector, prev []float32) error {
	if len(vector) == 0 {
		return nil
	}
	if err := c.vec.Add(id, vector); err != nil {
		return err
	}
	if len(prev) != 0 {
		old := prev
		tx.Defer(func() { _ = c.vec.Add(id, old) })
	} else {
		tx.Defer(func() { c.vec.Delete(id) })
	}
	return nil
}

// unindexVector removes the vector entry for id with undo. Absent
// entries are a no-op.
func (c *Coordinator) unindexVector(tx *store.Tx, id model.ID) {
	if old, ok := c.vec.Get(id); ok {
		c.vec.Delete(id)
		tx.Defer(func() { _ = c.vec.Add(id, old) })
	}
}

// unindexComponent retires a component's index entries with undo.
func (c *Coordinator) unindexComponent(tx *store.Tx, comp *model.Component, docName string) {
	source := searchSource(docName, comp.Text)
	c.lex.Delete(comp.ID)
	tx.Defer(func() { c.lex.Add(comp.ID, source) })

	if old, ok := c.vec.Get(comp.ID); ok {
		c.vec.Delete(comp.ID)
		tx.Defer(func() { _ = c.vec.Add(comp.ID, old) })
	}
}
