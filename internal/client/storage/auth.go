package storage

import (
	"context"
	"time"
)

// CredentialsStorage stores the enrollment of this device with a server.
type CredentialsStorage interface {
	// SaveCredentials stores credentials, replacing existing ones
	SaveCredentials(ctx context.Context, creds *Credentials) error

	// GetCredentials returns ErrCredentialsNotFound if the device is not enrolled
	GetCredentials(ctx context.Context) (*Credentials, error)

	// DeleteCredentials removes stored credentials
	DeleteCredentials(ctx context.Context) error
}

// Credentials describe how this device talks to the server.
// Token is a bearer token minted by the server for this device.
type Credentials struct {
	ExpiresAt time.Time `json:"expires_at"`
	ServerURL string    `json:"server_url"`
	Token     string    `json:"token"`
	FamilyID  string    `json:"family_id"`
	Member    string    `json:"member"`
}

// Expired reports whether the token has an expiry in the past.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
