package boltdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/models"
)

var (
	keyLastSyncedAt = []byte("last_synced_at")
	keyDeviceID     = []byte("device_id")
	keyClock        = []byte("clock")
	keySealSalt     = []byte("seal_salt")
	keySealCheck    = []byte("seal_check")
)

// GetCursor returns the sync cursor
func (s *Storage) GetCursor(ctx context.Context) (*models.SyncCursor, error) {
	cursor := &models.SyncCursor{}

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		cursor.DeviceID = string(b.Get(keyDeviceID))
		// Если cursor не найден, возвращаем нулевое время (первая синхронизация)
		cursor.LastSyncedAt = unixNano(b.Get(keyLastSyncedAt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}

	return cursor, nil
}

// DeviceID returns the device id, generating one on first use
func (s *Storage) DeviceID(ctx context.Context) (string, error) {
	var deviceID string

	err := s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		if v := b.Get(keyDeviceID); v != nil {
			deviceID = string(v)
			return nil
		}
		deviceID = uuid.NewString()
		return b.Put(keyDeviceID, []byte(deviceID))
	})
	if err != nil {
		return "", fmt.Errorf("failed to get device id: %w", err)
	}

	return deviceID, nil
}

// SetDeviceID replaces the device id
func (s *Storage) SetDeviceID(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id cannot be empty")
	}
	return s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		return b.Put(keyDeviceID, []byte(deviceID))
	})
}

// GetClock returns the last persisted device clock value
func (s *Storage) GetClock(ctx context.Context) (time.Time, error) {
	var last time.Time

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		last = unixMilli(b.Get(keyClock))
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get clock: %w", err)
	}

	return last, nil
}

// SaveClock persists the device clock
func (s *Storage) SaveClock(ctx context.Context, last time.Time) error {
	return s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		return b.Put(keyClock, int64Value(last.UnixMilli()))
	})
}

func saveCursor(tx *bbolt.Tx, cursor *models.SyncCursor) error {
	b, err := bucket(tx, bucketMetadata)
	if err != nil {
		return err
	}
	if cursor.LastSyncedAt.IsZero() {
		return b.Delete(keyLastSyncedAt)
	}
	// Курсор сравнивается с updated_at сервера, поэтому хранится с точностью до наносекунды
	if err := b.Put(keyLastSyncedAt, int64Value(cursor.LastSyncedAt.UnixNano())); err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}

// unixNano декодирует время в наносекундах; отсутствие значения - нулевое время
func unixNano(data []byte) time.Time {
	if len(data) != 8 {
		return time.Time{}
	}
	return time.Unix(0, valueInt64(data)).UTC()
}

// unixMilli декодирует время в миллисекундах; отсутствие значения - нулевое время
func unixMilli(data []byte) time.Time {
	if len(data) != 8 {
		return time.Time{}
	}
	return time.UnixMilli(valueInt64(data)).UTC()
}
