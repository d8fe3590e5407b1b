package applier

import (
	"context"
	"fmt"

	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/version"
)

// MergeAuthoritative stores a server-confirmed snapshot on the client.
// The snapshot is written and the local version bumped only when it is newer
// than what the device already knows; older or equal snapshots are skipped.
// It reports whether anything was written.
func MergeAuthoritative(ctx context.Context, tx EntityTx, entity *models.Entity) (bool, error) {
	if entity == nil {
		return false, nil
	}

	tracker := version.NewTracker(tx)
	known, err := tracker.CurrentVersion(ctx, entity.ID)
	if err != nil {
		return false, err
	}
	if entity.Version <= known {
		return false, nil
	}

	if err := tx.PutEntity(ctx, entity.Clone()); err != nil {
		return false, fmt.Errorf("failed to store snapshot %s: %w", entity.ID, err)
	}
	if err := tracker.Bump(ctx, entity.ID, entity.Version); err != nil {
		return false, err
	}
	return true, nil
}
