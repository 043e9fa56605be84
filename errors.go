package corpusdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/corpusdb/blobstore"
	"github.com/hupe1980/corpusdb/store"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation is returned when a write would break a
	// structural rule: a missing parent, a duplicate id, an invalid
	// component kind.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrTransactionAborted is returned when an operation is abandoned
	// before commit, typically by context cancellation. No partial
	// effects remain.
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrInvalidK is returned when a search k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned when the database has been closed.
	ErrClosed = errors.New("database is closed")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrNotFound) || errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, store.ErrConstraintViolation) {
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	}

	return err
}
