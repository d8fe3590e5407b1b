package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/wire"
	"github.com/iudanet/famsync/pkg/api"
)

// chain tracks which base versions of one entity the server moved forward
type chain struct {
	bases map[int64]struct{}
	to    int64
}

// reconcile merges a server response in one local transaction.
// Events are returned rather than emitted so nothing is announced for a rolled-back merge.
func (c *Coordinator) reconcile(
	ctx context.Context,
	deviceID string,
	batch []*models.MutationRecord,
	resp *api.SyncResponse,
) (*CycleStats, []Event, error) {
	sent := make(map[uint64]*models.MutationRecord, len(batch))
	for _, m := range batch {
		sent[m.Seq] = m
	}

	var (
		stats  *CycleStats
		events []Event
	)

	err := c.store.WithReconcileTx(ctx, func(tx storage.ReconcileTx) error {
		stats = &CycleStats{ServerTime: resp.ServerTime, Sent: len(batch)}
		events = nil

		answered := make(map[uint64]bool, len(batch))
		chains := make(map[string]*chain)
		acked := make([]uint64, 0, len(batch))

		for i := range resp.Results {
			res := &resp.Results[i]
			m, ok := sent[res.MutationID]
			if !ok || answered[res.MutationID] {
				c.logger.Warn("Ignoring result for unknown mutation", "mutation_id", res.MutationID)
				continue
			}
			answered[m.Seq] = true

			switch res.Outcome {
			case api.OutcomeApplied, api.OutcomeConflict:
				if err := c.acknowledge(ctx, tx, m, res, chains); err != nil {
					return err
				}
				acked = append(acked, m.Seq)
				if res.Outcome == api.OutcomeApplied {
					stats.Applied++
				} else {
					stats.Conflicts++
				}
				if len(res.Discarded) > 0 {
					events = append(events, Event{
						Type:       EventConflict,
						Seq:        m.Seq,
						EntityID:   m.EntityID,
						EntityType: m.EntityType,
						Strategy:   models.Strategy(res.Strategy),
						Discarded:  models.Fields(res.Discarded).Clone(),
					})
				}

			case api.OutcomeFailed:
				// Отказ по отдельной мутации окончателен: повтор без правки не поможет
				dl := &models.DeadLetter{
					DeadAt:   c.now(),
					Reason:   res.Reason,
					Code:     res.Code,
					Mutation: *m.Clone(),
				}
				if err := tx.DeadLetter(ctx, dl); err != nil {
					return fmt.Errorf("failed to dead-letter mutation %d: %w", m.Seq, err)
				}
				stats.DeadLettered++
				events = append(events, Event{
					Type:       EventDeadLettered,
					Seq:        m.Seq,
					EntityID:   m.EntityID,
					EntityType: m.EntityType,
					Reason:     res.Reason,
					Code:       res.Code,
				})

			default:
				c.logger.Warn("Unknown mutation outcome", "mutation_id", m.Seq, "outcome", res.Outcome)
				answered[m.Seq] = false
			}
		}

		if err := tx.Commit(ctx, acked); err != nil {
			return fmt.Errorf("failed to commit acknowledged mutations: %w", err)
		}

		// Оставшиеся правки тех же объектов переносятся на новую версию
		for entityID, ch := range chains {
			for base := range ch.bases {
				if base >= ch.to {
					continue
				}
				n, err := tx.Rebase(ctx, entityID, base, ch.to)
				if err != nil {
					return fmt.Errorf("failed to rebase %s: %w", entityID, err)
				}
				stats.Rebased += n
			}
		}

		// Мутации без ответа остаются в очереди
		for _, m := range batch {
			if answered[m.Seq] {
				continue
			}
			if err := tx.MarkAttempt(ctx, []uint64{m.Seq}, models.CodeUnavailable+": no result from server"); err != nil {
				return err
			}
			stats.Retrying++
		}

		for i := range resp.Changes {
			written, err := applier.MergeAuthoritative(ctx, tx, wire.FromEntity(&resp.Changes[i]))
			if err != nil {
				return fmt.Errorf("failed to merge change %s: %w", resp.Changes[i].ID, err)
			}
			if written {
				stats.Pulled++
			}
		}

		cursor, more := nextCursor(resp)
		stats.More = more
		return tx.SaveCursor(ctx, &models.SyncCursor{
			DeviceID:     deviceID,
			LastSyncedAt: cursor,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	c.observe(ctx, resp)
	return stats, events, nil
}

// acknowledge stores the authoritative state of an applied or resolved mutation.
func (c *Coordinator) acknowledge(
	ctx context.Context,
	tx storage.ReconcileTx,
	m *models.MutationRecord,
	res *api.MutationResult,
	chains map[string]*chain,
) error {
	entity := wire.FromEntity(res.ResolvedEntity)
	// Удаление несуществующего объекта приходит без версии
	if entity == nil || entity.Version == 0 {
		return nil
	}

	if _, err := applier.MergeAuthoritative(ctx, tx, entity); err != nil {
		return fmt.Errorf("failed to merge result for %s: %w", m.EntityID, err)
	}

	// Переносим только цепочки прямых записей: правки, стоящие в очереди за
	// конфликтом, сделаны до того, как устройство увидело чужое состояние,
	// и должны пройти через резолвер
	if !directWrite(res) {
		return nil
	}
	ch, ok := chains[m.EntityID]
	if !ok {
		ch = &chain{bases: make(map[int64]struct{})}
		chains[m.EntityID] = ch
	}
	ch.bases[m.BaseVersion] = struct{}{}
	ch.to = max(ch.to, entity.Version)
	return nil
}

// directWrite reports whether the server wrote m on top of the version it was based on.
func directWrite(res *api.MutationResult) bool {
	if res.Outcome != api.OutcomeApplied {
		return false
	}
	strategy := models.Strategy(res.Strategy)
	return strategy == "" || strategy == models.StrategyNone
}

// nextCursor returns the position the next request pulls from. A partial
// delta ends at its last change; the server cuts pages on write-time boundaries.
func nextCursor(resp *api.SyncResponse) (time.Time, bool) {
	if !resp.HasMore || len(resp.Changes) == 0 {
		return resp.ServerTime, false
	}
	return resp.Changes[len(resp.Changes)-1].UpdatedAt, true
}

// observe moves the device clock past server time so later edits sort after it.
func (c *Coordinator) observe(ctx context.Context, resp *api.SyncResponse) {
	if c.clock == nil {
		return
	}
	c.clock.Observe(resp.ServerTime)
	if err := c.store.SaveClock(ctx, c.clock.Last()); err != nil {
		c.logger.Warn("Failed to persist device clock", "error", err)
	}
}
