package store

import (
	"github.com/hupe1980/corpusdb/model"
)

// Tx is an undo-journal transaction over the store. Each mutating
// method records a compensation before applying its change; Rollback
// replays the journal in reverse so a multi-stage mutation that fails
// midway leaves no entity in an inconsistent state.
//
// Tx provides logical atomicity only: the caller is expected to hold
// the relevant row locks for the duration, which is what hides
// intermediate states from readers. Every open Tx additionally holds
// the store's transaction latch shared, which is what Export excludes
// against.
type Tx struct {
	s     *Store
	undo  []func()
	purge []model.ID
	done  bool
}

// Begin starts a transaction.
func (s *Store) Begin() *Tx {
	s.txMu.RLock()
	return &Tx{s: s}
}

// Defer registers a compensation to run on Rollback.
func (tx *Tx) Defer(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// Commit discards the undo journal, making the changes final, and
// retires the lock registry entries of every row the transaction
// deleted.
func (tx *Tx) Commit() {
	if tx.done {
		return
	}
	for _, id := range tx.purge {
		tx.s.rows.purge(id)
	}
	tx.undo = nil
	tx.purge = nil
	tx.done = true
	tx.s.txMu.RUnlock()
}

// Rollback reverts all changes applied through this transaction, in
// reverse order. Safe to call after Commit (no-op), so callers can
// `defer tx.Rollback()`.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.purge = nil
	tx.done = true
	tx.s.txMu.RUnlock()
}

// PutAccount upserts an account with undo.
func (tx *Tx) PutAccount(a *model.Account) {
	prev, had := tx.s.accounts.get(a.ID)
	tx.s.PutAccount(a)
	tx.Defer(func() {
		if had {
			tx.s.accounts.set(prev.ID, prev)
		} else {
			tx.s.accounts.delete(a.ID)
		}
	})
}

// PutKnowledgeBase upserts a knowledge base with undo.
func (tx *Tx) PutKnowledgeBase(kb *model.KnowledgeBase) error {
	prev, had := tx.s.kbs.get(kb.ID)
	if err := tx.s.PutKnowledgeBase(kb); err != nil {
		return err
	}
	tx.Defer(func() {
		if had {
			tx.s.kbs.set(prev.ID, prev)
		} else {
			tx.s.kbs.delete(kb.ID)
		}
	})
	return nil
}

// PutDocument upserts a document with undo.
func (tx *Tx) PutDocument(d *model.Document) error {
	prev, had := tx.s.documents.get(d.ID)
	if err := tx.s.PutDocument(d); err != nil {
		return err
	}
	tx.Defer(func() {
		if had {
			tx.s.documents.set(prev.ID, prev)
		} else {
			tx.s.documents.delete(d.ID)
		}
	})
	return nil
}

// PutComponent upserts a component with undo.
func (tx *Tx) PutComponent(c *model.Component) error {
	prev, had := tx.s.components.get(c.ID)
	if err := tx.s.PutComponent(c); err != nil {
		return err
	}
	tx.Defer(func() {
		if had {
			tx.s.components.set(prev.ID, prev)
		} else {
			tx.s.components.delete(c.ID)
		}
	})
	return nil
}

// DeleteComponent removes a component with undo. A missing row is a
// no-op so cascades tolerate children deleted by a racing caller.
func (tx *Tx) DeleteComponent(id model.ID) {
	prev, had := tx.s.components.get(id)
	if !had {
		return
	}
	tx.s.components.delete(id)
	tx.purge = append(tx.purge, id)
	tx.Defer(func() { tx.s.components.set(id, prev) })
}

// DeleteDocument removes a document and, cascading, all of its
// components. It returns the deleted components so the caller can
// retire their index entries. Missing rows are no-ops.
func (tx *Tx) DeleteDocument(id model.ID) []*model.Component {
	prev, had := tx.s.documents.get(id)
	if !had {
		return nil
	}

	removed := tx.s.ComponentsByDocument(id)
	for _, c := range removed {
		tx.DeleteComponent(c.ID)
	}

	tx.s.documents.delete(id)
	tx.purge = append(tx.purge, id)
	tx.Defer(func() { tx.s.documents.set(id, prev) })

	return removed
}

// DeleteKnowledgeBase removes a knowledge base and cascades through its
// documents and their components. Returns everything removed below it.
func (tx *Tx) DeleteKnowledgeBase(id model.ID) (docs []*model.Document, comps []*model.Component) {
	prev, had := tx.s.kbs.get(id)
	if !had {
		return nil, nil
	}

	for _, d := range tx.s.DocumentsByKnowledgeBase(id) {
		comps = append(comps, tx.DeleteDocument(d.ID)...)
		docs = append(docs, d)
	}

	tx.s.kbs.delete(id)
	tx.purge = append(tx.purge, id)
	tx.Defer(func() { tx.s.kbs.set(id, prev) })

	return docs, comps
}

// DeleteAccount removes an account and cascades through every owned
// knowledge base.
func (tx *Tx) DeleteAccount(id model.ID) (kbs []*model.KnowledgeBase, docs []*model.Document, comps []*model.Component) {
	prev, had := tx.s.accounts.get(id)
	if !had {
		return nil, nil, nil
	}

	for _, kb := range tx.s.KnowledgeBasesByAccount(id) {
		d, c := tx.DeleteKnowledgeBase(kb.ID)
		docs = append(docs, d...)
		comps = append(comps, c...)
		kbs = append(kbs, kb)
	}

	tx.s.accounts.delete(id)
	tx.purge = append(tx.purge, id)
	tx.Defer(func() { tx.s.accounts.set(id, prev) })

	return kbs, docs, comps
}
