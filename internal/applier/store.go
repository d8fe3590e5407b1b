package applier

import (
	"context"
	"time"

	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/version"
)

// EntityTx is an open storage transaction over entity snapshots and versions.
// The caller owns begin/commit/rollback; any error returned by the applier
// means the transaction must be rolled back.
type EntityTx interface {
	version.Store

	// GetEntity returns the current snapshot including tombstones.
	// Returns models.ErrEntityNotFound if the entity was never written.
	GetEntity(ctx context.Context, entityID string) (*models.Entity, error)

	// PutEntity creates or replaces a snapshot.
	PutEntity(ctx context.Context, entity *models.Entity) error
}

// AuditTx is implemented by transactions that keep a conflict audit trail.
type AuditTx interface {
	RecordConflict(ctx context.Context, record ConflictRecord) error
}

// ConflictRecord is one resolved conflict written to the audit trail.
type ConflictRecord struct {
	ResolvedAt  time.Time
	Decision    models.ConflictDecision
	FamilyID    string
	DeviceID    string
	EntityID    string
	EntityType  models.EntityType
	BaseVersion int64
	Version     int64 // версия после разрешения
}
