package storage

import "errors"

// Common storage errors
var (
	// ErrSnapshotNotFound indicates that no snapshot exists for the document
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrReplicaIDNotFound indicates that no replica ID was saved for the document
	ErrReplicaIDNotFound = errors.New("replica id not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
