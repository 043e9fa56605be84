package engine

import (
	"github.com/hupe1980/corpusdb/model"
)

// resolvePosition implements the last-writer-wins repositioning policy.
//
// If the caller supplies no position, a negative one, or one already
// held by another component of the document, the component is moved to
// the end (max existing position + 1, with -1 as the base for an empty
// document). Collisions are repaired silently, never surfaced.
//
// Caller must hold the document's row lock.
func (c *Coordinator) resolvePosition(docID model.ID, requested *int, exclude model.ID) int {
	if requested != nil && *requested >= 0 && !c.store.PositionTaken(docID, *requested, exclude) {
		return *requested
	}

	pos := c.store.MaxPosition(docID) + 1
	if requested != nil {
		c.log.Debug("position conflict repaired",
			"document_id", string(docID),
			"requested", *requested,
			"assigned", pos,
		)
	}
	return pos
}
