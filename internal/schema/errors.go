package schema

import "errors"

// Schema errors
var (
	// ErrInvalidShape indicates that a value does not satisfy the field validator
	ErrInvalidShape = errors.New("invalid shape")

	// ErrUnknownField indicates that no field with the given name exists in the current version
	ErrUnknownField = errors.New("unknown field")

	// ErrDuplicateField indicates that a stable ID or display name is used twice in one version
	ErrDuplicateField = errors.New("duplicate field")

	// ErrInvalidSchema indicates an inconsistent schema definition
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrRowNotFound indicates that a table has no row with the given ID
	ErrRowNotFound = errors.New("row not found")
)
