package engine

import (
	"slices"

	"github.com/hupe1980/corpusdb/model"
	"github.com/hupe1980/corpusdb/store"
)

// Referential sync keeps each parent's denormalized child-id list in
// step with the actual child set. Lists are ordered by membership
// history: creation appends, deletion removes, and an update of the
// child — even one that keeps the same parent — removes then appends,
// moving the id to the end. The move-to-end behavior on same-parent
// updates matches the original trigger semantics and is covered by the
// list-fidelity tests.
//
// Document.ComponentIDs is the exception: it is position-ordered and
// owned by the content aggregator, not by membership history.
//
// All helpers require the parent's row lock to be held for the whole
// read-modify-write.

// appendChild appends id to list if absent.
func appendChild(list []model.ID, id model.ID) []model.ID {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}

// removeChild removes id from list if present.
func removeChild(list []model.ID, id model.ID) []model.ID {
	i := slices.Index(list, id)
	if i < 0 {
		return list
	}
	return slices.Delete(slices.Clone(list), i, i+1)
}

// touchChild implements the remove-then-append refresh.
func touchChild(list []model.ID, id model.ID) []model.ID {
	return append(removeChild(list, id), id)
}

// syncAccountList applies op to the account's knowledge-base id list.
func (c *Coordinator) syncAccountList(tx *store.Tx, accountID, kbID model.ID, op listOp) error {
	acc, err := c.store.GetAccount(accountID)
	if err != nil {
		return err
	}
	acc.KnowledgeBaseIDs = op.apply(acc.KnowledgeBaseIDs, kbID)
	acc.UpdatedAt = c.now()
	tx.PutAccount(acc)
	return nil
}

// syncKnowledgeBaseList applies op to the knowledge base's document id
// list and refreshes the owning account's list one level up, mirroring
// the original cascade of row-update reactions.
func (c *Coordinator) syncKnowledgeBaseList(tx *store.Tx, kbID, docID model.ID, op listOp) error {
	kb, err := c.store.GetKnowledgeBase(kbID)
	if err != nil {
		return err
	}
	kb.DocumentIDs = op.apply(kb.DocumentIDs, docID)
	kb.UpdatedAt = c.now()
	if err := tx.PutKnowledgeBase(kb); err != nil {
		return err
	}
	return c.syncAccountList(tx, kb.AccountID, kbID, opTouch)
}

// listOp is a membership mutation on a denormalized id list.
type listOp int

const (
	opAppend listOp = iota
	opRemove
	opTouch
)

func (op listOp) apply(list []model.ID, id model.ID) []model.ID {
	switch op {
	case opAppend:
		return appendChild(list, id)
	case opRemove:
		return removeChild(list, id)
	default:
		return touchChild(list, id)
	}
}
