package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/server/storage"
)

// WithSyncTx runs fn in one write transaction. The pool holds a single
// connection, so sync transactions never overlap.
func (s *Storage) WithSyncTx(ctx context.Context, fn func(tx storage.SyncTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &syncTx{tx: sqlTx, serverTime: s.commitTime()}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// syncTx implements storage.SyncTx over an open transaction
type syncTx struct {
	serverTime time.Time
	tx         *sql.Tx
}

func (t *syncTx) ServerTime() time.Time {
	return t.serverTime
}

// GetEntity returns models.ErrEntityNotFound if the entity doesn't exist
func (t *syncTx) GetEntity(ctx context.Context, entityID string) (*models.Entity, error) {
	query := `
		SELECT id, family_id, entity_type, version, deleted, fields, stamps, updated_at
		FROM entities
		WHERE id = ?
	`

	entity, err := scanEntity(t.tx.QueryRowContext(ctx, query, entityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// PutEntity inserts or replaces an entity snapshot
func (t *syncTx) PutEntity(ctx context.Context, entity *models.Entity) error {
	fields, err := json.Marshal(entity.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	stamps, err := json.Marshal(entity.Stamps)
	if err != nil {
		return fmt.Errorf("failed to marshal stamps: %w", err)
	}

	query := `
		INSERT INTO entities (id, family_id, entity_type, version, deleted, fields, stamps, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			family_id = excluded.family_id,
			entity_type = excluded.entity_type,
			version = excluded.version,
			deleted = excluded.deleted,
			fields = excluded.fields,
			stamps = excluded.stamps,
			updated_at = excluded.updated_at
	`

	_, err = t.tx.ExecContext(ctx, query,
		entity.ID,
		entity.FamilyID,
		string(entity.Type),
		entity.Version,
		boolToInt(entity.Deleted),
		string(fields),
		string(stamps),
		toNanos(entity.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put entity: %w", err)
	}
	return nil
}

// Version returns the stored version, 0 if unknown
func (t *syncTx) Version(ctx context.Context, entityID string) (int64, error) {
	var v int64
	err := t.tx.QueryRowContext(ctx, `SELECT version FROM entity_versions WHERE entity_id = ?`, entityID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

// SetVersion stores the version unconditionally
func (t *syncTx) SetVersion(ctx context.Context, entityID string, version int64) error {
	query := `
		INSERT INTO entity_versions (entity_id, version) VALUES (?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET version = excluded.version
	`
	if _, err := t.tx.ExecContext(ctx, query, entityID, version); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}

// RecordConflict appends a resolved conflict to the audit log
func (t *syncTx) RecordConflict(ctx context.Context, record applier.ConflictRecord) error {
	accepted, err := marshalOptional(record.Decision.Accepted)
	if err != nil {
		return err
	}
	discarded, err := marshalOptional(record.Decision.Discarded)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conflict_audit (
			family_id, device_id, entity_id, entity_type, base_version, version,
			strategy, local_discarded, accepted, discarded, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = t.tx.ExecContext(ctx, query,
		record.FamilyID,
		record.DeviceID,
		record.EntityID,
		string(record.EntityType),
		record.BaseVersion,
		record.Version,
		string(record.Decision.Strategy),
		boolToInt(record.Decision.LocalDiscarded),
		accepted,
		discarded,
		toNanos(record.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	return nil
}

// ChangesSince returns the family's entities written after since, tombstones included.
// The page is cut on an updated_at boundary so a cursor taken from its last entity skips nothing.
func (t *syncTx) ChangesSince(ctx context.Context, familyID string, since time.Time, limit int) ([]*models.Entity, bool, error) {
	query := `
		SELECT id, family_id, entity_type, version, deleted, fields, stamps, updated_at
		FROM entities
		WHERE family_id = ? AND updated_at > ?
		ORDER BY updated_at, id
		LIMIT ?
	`

	var after int64
	if !since.IsZero() {
		after = toNanos(since)
	}

	// Одна лишняя строка показывает, есть ли продолжение
	fetch := -1
	if limit > 0 {
		fetch = limit + 1
	}
	entities, err := t.queryEntities(ctx, query, familyID, after, fetch)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query changes: %w", err)
	}
	if limit <= 0 || len(entities) <= limit {
		return entities, false, nil
	}

	boundary := entities[limit].UpdatedAt
	page := entities[:limit]
	for len(page) > 0 && page[len(page)-1].UpdatedAt.Equal(boundary) {
		page = page[:len(page)-1]
	}
	if len(page) > 0 {
		return page, true, nil
	}

	// Одна транзакция записала больше limit объектов: отдаем ее целиком
	group, err := t.queryEntities(ctx, `
		SELECT id, family_id, entity_type, version, deleted, fields, stamps, updated_at
		FROM entities
		WHERE family_id = ? AND updated_at = ?
		ORDER BY id
	`, familyID, toNanos(boundary))
	if err != nil {
		return nil, false, fmt.Errorf("failed to query changes: %w", err)
	}
	return group, true, nil
}

func (t *syncTx) queryEntities(ctx context.Context, query string, args ...any) ([]*models.Entity, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entities, nil
}

// TouchDevice updates last_sync_at of a registered device
func (t *syncTx) TouchDevice(ctx context.Context, deviceID string) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE devices SET last_sync_at = ? WHERE id = ?`,
		toNanos(t.serverTime), deviceID)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrDeviceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		entity     models.Entity
		entityType string
		deleted    int
		fields     string
		stamps     string
		updatedAt  int64
	)

	if err := row.Scan(
		&entity.ID,
		&entity.FamilyID,
		&entityType,
		&entity.Version,
		&deleted,
		&fields,
		&stamps,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	entity.Type = models.EntityType(entityType)
	entity.Deleted = deleted != 0
	entity.UpdatedAt = fromNanos(updatedAt)

	if err := json.Unmarshal([]byte(fields), &entity.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields of %s: %w", entity.ID, err)
	}
	if err := json.Unmarshal([]byte(stamps), &entity.Stamps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stamps of %s: %w", entity.ID, err)
	}
	return &entity, nil
}

func marshalOptional(f models.Fields) (sql.NullString, error) {
	if len(f) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal fields: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
