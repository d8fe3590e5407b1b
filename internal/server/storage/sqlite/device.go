package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/famsync/internal/server/storage"
)

// RegisterDevice adds a device to the registry
func (s *Storage) RegisterDevice(ctx context.Context, device *storage.Device) error {
	query := `
		INSERT INTO devices (id, family_id, member, created_at, last_sync_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		device.ID,
		device.FamilyID,
		device.Member,
		toNanos(device.CreatedAt),
		nullNanos(device.LastSyncAt),
		nullNanos(device.RevokedAt),
	)
	if err != nil {
		// Проверяем на duplicate id
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrDeviceAlreadyExists
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}

	return nil
}

// GetDevice retrieves device by ID
func (s *Storage) GetDevice(ctx context.Context, deviceID string) (*storage.Device, error) {
	query := `
		SELECT id, family_id, member, created_at, last_sync_at, revoked_at
		FROM devices
		WHERE id = ?
	`

	device, err := scanDevice(s.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// ListDevices returns the devices of a family
func (s *Storage) ListDevices(ctx context.Context, familyID string) ([]*storage.Device, error) {
	query := `
		SELECT id, family_id, member, created_at, last_sync_at, revoked_at
		FROM devices
		WHERE family_id = ?
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := make([]*storage.Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	return devices, nil
}

// RevokeDevice marks a device revoked
func (s *Storage) RevokeDevice(ctx context.Context, deviceID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE devices SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`,
		toNanos(at), deviceID)
	if err != nil {
		return fmt.Errorf("failed to revoke device: %w", err)
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

func scanDevice(row rowScanner) (*storage.Device, error) {
	var (
		device     storage.Device
		createdAt  int64
		lastSyncAt sql.NullInt64
		revokedAt  sql.NullInt64
	)

	if err := row.Scan(
		&device.ID,
		&device.FamilyID,
		&device.Member,
		&createdAt,
		&lastSyncAt,
		&revokedAt,
	); err != nil {
		return nil, err
	}

	device.CreatedAt = fromNanos(createdAt)
	device.LastSyncAt = fromNullNanos(lastSyncAt)
	device.RevokedAt = fromNullNanos(revokedAt)
	return &device, nil
}
