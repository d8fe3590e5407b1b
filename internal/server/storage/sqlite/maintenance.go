package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/models"
)

// PurgeTombstones removes tombstones last written before cutoff
func (s *Storage) PurgeTombstones(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE deleted = 1 AND updated_at < ?`,
		toNanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge tombstones: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// PurgeConflicts removes audit records resolved before cutoff
func (s *Storage) PurgeConflicts(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conflict_audit WHERE resolved_at < ?`,
		toNanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge conflicts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// ListConflicts returns the newest audit records of a family
func (s *Storage) ListConflicts(ctx context.Context, familyID string, limit int) ([]*applier.ConflictRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT family_id, device_id, entity_id, entity_type, base_version, version,
		       strategy, local_discarded, accepted, discarded, resolved_at
		FROM conflict_audit
		WHERE family_id = ?
		ORDER BY resolved_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, familyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	records := make([]*applier.ConflictRecord, 0)
	for rows.Next() {
		var (
			record         applier.ConflictRecord
			entityType     string
			strategy       string
			localDiscarded int
			accepted       sql.NullString
			discarded      sql.NullString
			resolvedAt     int64
		)
		if err := rows.Scan(
			&record.FamilyID,
			&record.DeviceID,
			&record.EntityID,
			&entityType,
			&record.BaseVersion,
			&record.Version,
			&strategy,
			&localDiscarded,
			&accepted,
			&discarded,
			&resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}

		record.EntityType = models.EntityType(entityType)
		record.ResolvedAt = fromNanos(resolvedAt)
		record.Decision.Strategy = models.Strategy(strategy)
		record.Decision.LocalDiscarded = localDiscarded != 0
		if record.Decision.Accepted, err = unmarshalOptional(accepted); err != nil {
			return nil, err
		}
		if record.Decision.Discarded, err = unmarshalOptional(discarded); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}

	return records, nil
}

func unmarshalOptional(s sql.NullString) (models.Fields, error) {
	if !s.Valid {
		return nil, nil
	}
	var f models.Fields
	if err := json.Unmarshal([]byte(s.String), &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return f, nil
}
