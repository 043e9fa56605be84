// Package store implements the entity store: durable in-memory tables
// for the four entity kinds, row-level locks for parents whose
// denormalized lists are being mutated, and undo-journal transactions
// with cascading deletes.
//
// The store knows nothing about derived state. Positions, id lists,
// aggregates and indexes are maintained by the engine package, which
// runs every multi-stage mutation inside one Tx under the owning row's
// lock.
package store
