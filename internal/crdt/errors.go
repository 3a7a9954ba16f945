package crdt

import "errors"

// Common store errors
var (
	// ErrReentrantMutation indicates that a merge or compaction was started while
	// another one is still running on the same store instance
	ErrReentrantMutation = errors.New("merge or compaction already in progress")

	// ErrStoreClosed indicates that the store or document was closed
	ErrStoreClosed = errors.New("store is closed")

	// ErrEmptyKey indicates an attempt to write an empty key
	ErrEmptyKey = errors.New("key cannot be empty")

	// ErrInvalidKey indicates a key or collection name that is not valid UTF-8
	ErrInvalidKey = errors.New("key is not valid UTF-8")

	// ErrEmptyName indicates an attempt to declare a root collection without a name
	ErrEmptyName = errors.New("collection name cannot be empty")

	// ErrIndexOutOfRange indicates a positional log operation outside the log bounds
	ErrIndexOutOfRange = errors.New("log index out of range")

	// ErrMalformedUpdate indicates that an encoded state or update could not be decoded
	ErrMalformedUpdate = errors.New("malformed update")

	// ErrForeignCollection indicates that a collection belongs to another document
	// (or to no document at all)
	ErrForeignCollection = errors.New("collection does not belong to this document")

	// ErrNotCollection indicates that a key does not hold a collection reference
	ErrNotCollection = errors.New("value is not a collection reference")
)
