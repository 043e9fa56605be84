// Package engine coordinates every mutation of the corpus: position
// allocation, denormalized id-list maintenance, document text
// aggregation and index upkeep run inside a single undo-journal
// transaction under row locks, so readers never observe a half-applied
// write.
package engine
