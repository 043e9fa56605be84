package store

import "errors"

// ErrNotFound is returned when a referenced entity does not exist.
//
// This is a store-layer sentinel; the corpusdb package translates it
// into its public error contract.
var ErrNotFound = errors.New("not found")

// ErrConstraintViolation is returned when a write would leave a
// dangling parent reference or an invalid component kind.
var ErrConstraintViolation = errors.New("constraint violation")
