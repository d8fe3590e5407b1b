package storage

import "errors"

// Common client storage errors
var (
	// ErrCredentialsNotFound indicates that the device has not been enrolled yet
	ErrCredentialsNotFound = errors.New("credentials not found")

	// ErrMutationNotFound indicates that no pending mutation has this sequence number
	ErrMutationNotFound = errors.New("mutation not found")

	// ErrDeadLetterNotFound indicates that no dead letter has this sequence number
	ErrDeadLetterNotFound = errors.New("dead letter not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrLocked indicates that the storage is sealed and no passphrase was given
	ErrLocked = errors.New("storage is locked")
)
