package version

import (
	"context"
	"errors"
	"fmt"
)

// ErrVersionRegression indicates an attempt to move a version backwards.
// This is a programming error: versions only increase.
var ErrVersionRegression = errors.New("version regression")

// Store persists the last-known version per entity.
type Store interface {
	// Version returns the stored version, 0 if the entity is unknown.
	Version(ctx context.Context, entityID string) (int64, error)

	// SetVersion stores the version unconditionally.
	SetVersion(ctx context.Context, entityID string, version int64) error
}

// Tracker enforces monotonic versions on top of a Store.
type Tracker struct {
	store Store
}

// NewTracker creates a tracker over the given store (usually an open transaction).
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// CurrentVersion returns the last-known version for an entity.
func (t *Tracker) CurrentVersion(ctx context.Context, entityID string) (int64, error) {
	v, err := t.store.Version(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to read version of %s: %w", entityID, err)
	}
	return v, nil
}

// Bump records an acknowledged version.
// A lower version is rejected with ErrVersionRegression, an equal one is a no-op.
func (t *Tracker) Bump(ctx context.Context, entityID string, version int64) error {
	current, err := t.CurrentVersion(ctx, entityID)
	if err != nil {
		return err
	}

	if version < current {
		return fmt.Errorf("%w: %s at %d, got %d", ErrVersionRegression, entityID, current, version)
	}
	if version == current {
		return nil
	}

	if err := t.store.SetVersion(ctx, entityID, version); err != nil {
		return fmt.Errorf("failed to store version of %s: %w", entityID, err)
	}
	return nil
}

// Next bumps the entity to current+1 and returns the new version.
func (t *Tracker) Next(ctx context.Context, entityID string) (int64, error) {
	current, err := t.CurrentVersion(ctx, entityID)
	if err != nil {
		return 0, err
	}

	next := current + 1
	if err := t.Bump(ctx, entityID, next); err != nil {
		return 0, err
	}
	return next, nil
}
