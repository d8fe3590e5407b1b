package models

import "errors"

// ErrEntityNotFound is returned by entity stores when no snapshot exists.
var ErrEntityNotFound = errors.New("entity not found")
