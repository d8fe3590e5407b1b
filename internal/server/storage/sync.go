package storage

import (
	"context"
	"time"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/models"
)

// SyncTx is one serialized write transaction in which a device batch is applied.
type SyncTx interface {
	applier.EntityTx
	applier.AuditTx

	// ServerTime is the commit time of this transaction. It is taken after the
	// write lock is held and is strictly greater than that of any earlier transaction.
	ServerTime() time.Time

	// ChangesSince returns entities of a family (tombstones included) written after since,
	// ordered by write time. At most limit entities are returned unless one write time
	// alone holds more; a page never ends inside a group of equal write times.
	// more reports that further changes remain. limit <= 0 means no limit.
	ChangesSince(ctx context.Context, familyID string, since time.Time, limit int) (changes []*models.Entity, more bool, err error)

	// TouchDevice records that the device completed a sync at ServerTime
	TouchDevice(ctx context.Context, deviceID string) error
}

// SyncStorage runs sync transactions. If fn returns an error nothing is committed.
type SyncStorage interface {
	WithSyncTx(ctx context.Context, fn func(tx SyncTx) error) error
}

// MaintenanceStorage removes data past its retention.
type MaintenanceStorage interface {
	// PurgeTombstones deletes tombstones last written before cutoff.
	// Entity versions are kept so ids are never reused at a lower version.
	PurgeTombstones(ctx context.Context, cutoff time.Time) (int, error)

	// PurgeConflicts deletes audit records resolved before cutoff
	PurgeConflicts(ctx context.Context, cutoff time.Time) (int, error)
}

// AuditStorage reads the conflict audit log.
type AuditStorage interface {
	// ListConflicts returns the newest conflict records of a family, up to limit
	ListConflicts(ctx context.Context, familyID string, limit int) ([]*applier.ConflictRecord, error)
}
