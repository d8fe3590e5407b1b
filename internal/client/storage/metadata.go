package storage

import (
	"context"
	"time"

	"github.com/iudanet/famsync/internal/models"
)

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// GetCursor returns the sync cursor; LastSyncedAt is zero before the first sync
	GetCursor(ctx context.Context) (*models.SyncCursor, error)

	// DeviceID returns the device id, generating and persisting one on first use
	DeviceID(ctx context.Context) (string, error)

	// SetDeviceID replaces the device id (enrollment with a server-issued id)
	SetDeviceID(ctx context.Context, deviceID string) error

	// GetClock returns the last persisted device clock value
	GetClock(ctx context.Context) (time.Time, error)

	// SaveClock persists the device clock so timestamps stay monotonic across restarts
	SaveClock(ctx context.Context, last time.Time) error
}
