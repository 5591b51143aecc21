// Package engine ties storage, txn, index, and catalog together into
// the executor and session described by spec.md §4.F-§4.I. Grounded
// on the teacher's paged_storage.go (table/database wiring),
// src/core/constraints.go (constraint validator shape), join.go, and
// engine_adapter.go.
package engine

import "errors"

// Database/schema errors, per spec.md §7 "Engine/DB".
var (
	ErrTableAlreadyExists  = errors.New("engine: table already exists")
	ErrTableDoesNotExist   = errors.New("engine: table does not exist")
	ErrColumnUnknown       = errors.New("engine: unknown column")
	ErrColumnCountMismatch = errors.New("engine: column count mismatch")
	ErrTypeMismatch        = errors.New("engine: type mismatch")
	ErrNotNullViolation    = errors.New("engine: not null violation")
	ErrPkNull              = errors.New("engine: primary key column is null")
	ErrPkConflict          = errors.New("engine: primary key conflict")
	ErrFkMissingRef        = errors.New("engine: foreign key references unknown table")
	ErrFkViolation         = errors.New("engine: foreign key violation")
	ErrFkReferenced        = errors.New("engine: row is referenced by a foreign key")
	ErrIndexColumnMissing  = errors.New("engine: index references unknown column")
	ErrIndexExists         = errors.New("engine: index already exists")
)

// Evaluation errors, per spec.md §7 "Evaluation".
var (
	ErrUnknownColumn     = errors.New("engine: unknown column in expression")
	ErrAmbiguousColumn   = errors.New("engine: ambiguous column reference")
	ErrInvalidOpForType  = errors.New("engine: operator not valid for type")
)

// Transaction-control errors.
var (
	ErrNoActiveTransaction   = errors.New("engine: no active transaction")
	ErrTransactionInProgress = errors.New("engine: a transaction is already in progress")
)
