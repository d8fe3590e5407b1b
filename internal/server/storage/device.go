package storage

import (
	"context"
	"time"
)

// Device is a family member's device allowed to sync.
type Device struct {
	CreatedAt  time.Time  `json:"created_at"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ID         string     `json:"id"`
	FamilyID   string     `json:"family_id"`
	Member     string     `json:"member"`
}

// Revoked reports whether the device was revoked.
func (d *Device) Revoked() bool {
	return d.RevokedAt != nil
}

// DeviceStorage defines interface for the device registry
type DeviceStorage interface {
	// RegisterDevice adds a device. Returns ErrDeviceAlreadyExists if the id is taken.
	RegisterDevice(ctx context.Context, device *Device) error

	// GetDevice returns ErrDeviceNotFound if the device doesn't exist
	GetDevice(ctx context.Context, deviceID string) (*Device, error)

	// ListDevices returns all devices of a family ordered by creation time
	ListDevices(ctx context.Context, familyID string) ([]*Device, error)

	// RevokeDevice marks a device revoked. Returns ErrDeviceNotFound if it doesn't exist.
	RevokeDevice(ctx context.Context, deviceID string, at time.Time) error
}
