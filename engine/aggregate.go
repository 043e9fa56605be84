package engine

import (
	"strings"

	"github.com/hupe1980/corpusdb/model"
	"github.com/hupe1980/corpusdb/store"
)

// textSeparator joins component texts in a document aggregate.
const textSeparator = "\n\n"

// rebuildDocument recomputes Document.ComponentIDs and Document.Text
// from the live component set: ids in ascending position order, texts
// joined in that order with a blank-line separator. Components without
// text contribute an empty segment.
//
// This is a full rebuild from current state, not an incremental patch,
// so it is idempotent and has no side effects beyond the document row.
// Caller must hold the document's row lock.
func (c *Coordinator) rebuildDocument(tx *store.Tx, docID model.ID) error {
	doc, err := c.store.GetDocument(docID)
	if err != nil {
		return err
	}

	comps := c.store.ComponentsByDocument(docID)

	ids := make([]model.ID, len(comps))
	parts := make([]string, len(comps))
	for i, comp := range comps {
		ids[i] = comp.ID
		parts[i] = comp.Text
	}

	doc.ComponentIDs = ids
	doc.Text = strings.Join(parts, textSeparator)
	doc.UpdatedAt = c.now()

	return tx.PutDocument(doc)
}
