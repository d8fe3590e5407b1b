package boltdb

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/models"
)

// WithReconcileTx runs fn in one read-write transaction.
// If fn returns an error nothing it did is persisted.
func (s *Storage) WithReconcileTx(ctx context.Context, fn func(tx storage.ReconcileTx) error) error {
	return s.update(func(tx *bbolt.Tx) error {
		return fn(&reconcileTx{s: s, tx: tx})
	})
}

// reconcileTx adapts an open bbolt transaction to storage.ReconcileTx
type reconcileTx struct {
	s  *Storage
	tx *bbolt.Tx
}

func (r *reconcileTx) GetEntity(ctx context.Context, entityID string) (*models.Entity, error) {
	return r.s.getEntity(r.tx, entityID)
}

func (r *reconcileTx) PutEntity(ctx context.Context, entity *models.Entity) error {
	return r.s.putEntity(r.tx, entity)
}

func (r *reconcileTx) Version(ctx context.Context, entityID string) (int64, error) {
	return getVersion(r.tx, entityID)
}

func (r *reconcileTx) SetVersion(ctx context.Context, entityID string, v int64) error {
	return setVersion(r.tx, entityID, v)
}

func (r *reconcileTx) Commit(ctx context.Context, seqs []uint64) error {
	return commitMutations(r.tx, seqs)
}

func (r *reconcileTx) DeadLetter(ctx context.Context, dl *models.DeadLetter) error {
	return r.s.deadLetter(r.tx, dl)
}

func (r *reconcileTx) Rebase(ctx context.Context, entityID string, fromBase, toBase int64) (int, error) {
	return r.s.rebase(r.tx, entityID, fromBase, toBase)
}

func (r *reconcileTx) MarkAttempt(ctx context.Context, seqs []uint64, reason string) error {
	return r.s.markAttempt(r.tx, seqs, reason)
}

func (r *reconcileTx) SaveCursor(ctx context.Context, cursor *models.SyncCursor) error {
	return saveCursor(r.tx, cursor)
}
