package storage

import "errors"

// Common storage errors
var (
	// ErrDeviceNotFound indicates that the device was never registered
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceRevoked indicates that the device token must no longer be accepted
	ErrDeviceRevoked = errors.New("device revoked")

	// ErrDeviceAlreadyExists indicates a registration with an id already in use
	ErrDeviceAlreadyExists = errors.New("device already exists")
)
