package types

import "errors"

// Fatal precondition errors. Any of these aborts the run.
var (
	ErrNoSources        = errors.New("no model sources provided")
	ErrMissingCategory  = errors.New("required category missing from source")
	ErrUnknownOperation = errors.New("unknown operation kind")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// Recoverable and diagnostic errors.
var (
	// ErrMissingItem reports a category present in a source without the
	// requested item. Operations treat it as a per-descriptor failure.
	ErrMissingItem = errors.New("item missing from category")

	// ErrColumnCountMismatch reports a sql_query whose result width does
	// not match the declared target items. Nothing is written in that case.
	ErrColumnCountMismatch = errors.New("query column count does not match target items")

	// ErrIntegrity reports equal-length violations found before serialization.
	ErrIntegrity = errors.New("output store failed integrity check")

	// ErrEmptyStore reports a serialization attempt on a store no
	// operation ever wrote to.
	ErrEmptyStore = errors.New("output store holds no categories")
)
