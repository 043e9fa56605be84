// Package blobstore abstracts where snapshot blobs live. Snapshots are
// written and read as whole objects, so the interface is a flat
// name-addressed byte store rather than a streaming file API.
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for reading and writing snapshot blobs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes a blob, replacing any existing blob of the same name.
	Put(ctx context.Context, name string, data []byte) error

	// Get reads a blob in full. Returns ErrNotFound when absent.
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix, in
	// ascending lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// CommitStore tracks which snapshot blob is the latest published one.
// Backends with compare-and-swap semantics (DynamoDB) let concurrent
// writers publish safely; without one, "latest" falls back to lexical
// ordering of blob names.
type CommitStore interface {
	// Commit records a snapshot blob as the latest.
	Commit(ctx context.Context, name string) error

	// Latest returns the most recently committed snapshot name.
	// Returns ErrNotFound when nothing has been committed.
	Latest(ctx context.Context) (string, error)
}
