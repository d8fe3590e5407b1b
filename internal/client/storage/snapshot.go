package storage

import (
	"context"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/models"
)

// SnapshotStorage reads last-known server state.
type SnapshotStorage interface {
	// GetEntity returns models.ErrEntityNotFound if no snapshot exists
	GetEntity(ctx context.Context, entityID string) (*models.Entity, error)

	// ListEntities returns all snapshots of a type, tombstones included
	ListEntities(ctx context.Context, entityType models.EntityType) ([]*models.Entity, error)

	// Version returns the last acknowledged version, 0 if unknown
	Version(ctx context.Context, entityID string) (int64, error)
}

// ReconcileTx is one local transaction in which a server response is merged.
// Snapshots, versions, the log and the cursor move together or not at all.
type ReconcileTx interface {
	applier.EntityTx

	// Commit removes acknowledged mutations
	Commit(ctx context.Context, seqs []uint64) error

	// DeadLetter moves a mutation from the log to the dead-letter set
	DeadLetter(ctx context.Context, dl *models.DeadLetter) error

	// Rebase moves pending mutations of entityID based on fromBase to toBase.
	// Returns how many were rebased.
	Rebase(ctx context.Context, entityID string, fromBase, toBase int64) (int, error)

	// MarkAttempt increments Attempts of mutations that stay queued
	MarkAttempt(ctx context.Context, seqs []uint64, reason string) error

	// SaveCursor stores the sync cursor
	SaveCursor(ctx context.Context, cursor *models.SyncCursor) error
}

// Reconciler opens reconcile transactions. fn's error rolls everything back.
type Reconciler interface {
	WithReconcileTx(ctx context.Context, fn func(tx ReconcileTx) error) error
}

// LocalStore is everything the client keeps on disk.
type LocalStore interface {
	MutationLog
	DeadLetterStorage
	SnapshotStorage
	MetadataStorage
	CredentialsStorage
	Reconciler
	Close() error
}
