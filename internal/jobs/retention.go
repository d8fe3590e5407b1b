package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/famsync/internal/metrics"
	"github.com/iudanet/famsync/internal/server/storage"
)

// Retention purges server data older than its retention period.
type Retention struct {
	store      storage.MaintenanceStorage
	logger     *slog.Logger
	now        func() time.Time
	Tombstones time.Duration // 0 - tombstones хранятся вечно
	Conflicts  time.Duration // 0 - журнал конфликтов хранится вечно
}

// NewRetention creates the purge job.
func NewRetention(store storage.MaintenanceStorage, tombstones, conflicts time.Duration, logger *slog.Logger) *Retention {
	return &Retention{
		store:      store,
		logger:     logger,
		now:        time.Now,
		Tombstones: tombstones,
		Conflicts:  conflicts,
	}
}

// Run purges once. It matches Func.
func (r *Retention) Run(ctx context.Context) error {
	now := r.now()

	if r.Tombstones > 0 {
		n, err := r.store.PurgeTombstones(ctx, now.Add(-r.Tombstones))
		if err != nil {
			return fmt.Errorf("purge tombstones: %w", err)
		}
		metrics.ObservePurged("tombstones", n)
		if n > 0 {
			r.logger.Info("Tombstones purged", "count", n, "retention", r.Tombstones)
		}
	}

	if r.Conflicts > 0 {
		n, err := r.store.PurgeConflicts(ctx, now.Add(-r.Conflicts))
		if err != nil {
			return fmt.Errorf("purge conflicts: %w", err)
		}
		metrics.ObservePurged("conflicts", n)
		if n > 0 {
			r.logger.Info("Conflict audit purged", "count", n, "retention", r.Conflicts)
		}
	}

	return nil
}
