// Package auth enrolls the device with a famsync server.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iudanet/famsync/internal/client/api"
	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/models"
)

var (
	// ErrNotEnrolled - устройство еще не подключено к серверу
	ErrNotEnrolled = errors.New("device is not enrolled")
	// ErrOtherFamily - устройство уже подключено к другой семье
	ErrOtherFamily = errors.New("device is enrolled in another family")
	// ErrTokenExpired - срок действия токена истек
	ErrTokenExpired = errors.New("device token expired")
)

// Store is the part of the local store enrollment needs.
type Store interface {
	storage.CredentialsStorage
	storage.MetadataStorage
	PendingCount(ctx context.Context) (int, error)
	DeadLetters(ctx context.Context) ([]*models.DeadLetter, error)
}

// Status describes the device for the status command.
type Status struct {
	Credentials *storage.Credentials // nil, если устройство не подключено
	Cursor      *models.SyncCursor
	DeviceID    string
	Pending     int
	DeadLetters int
	Reachable   bool
}

type service struct {
	api    api.ClientAPI
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

var _ Service = (*service)(nil)

// NewService создает сервис подключения устройства
func NewService(apiClient api.ClientAPI, store Store, logger *slog.Logger) Service {
	return &service{
		api:    apiClient,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Enroll binds the local store to the family and device named in token.
// Re-enrolling into the same family replaces the token. The server is
// contacted only to warn about a wrong URL early; enrollment works offline.
func (s *service) Enroll(ctx context.Context, serverURL, token string) (*storage.Credentials, error) {
	token = strings.TrimSpace(token)
	claims, err := ParseToken(token)
	if err != nil {
		return nil, err
	}

	creds := &storage.Credentials{
		ServerURL: serverURL,
		Token:     token,
		FamilyID:  claims.FamilyID,
		Member:    claims.Member,
	}
	if claims.ExpiresAt != nil {
		creds.ExpiresAt = claims.ExpiresAt.Time
	}
	if creds.Expired(s.now()) {
		return nil, ErrTokenExpired
	}

	existing, err := s.store.GetCredentials(ctx)
	switch {
	case errors.Is(err, storage.ErrCredentialsNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	case existing.FamilyID != claims.FamilyID:
		return nil, fmt.Errorf("%w %q, run logout first", ErrOtherFamily, existing.FamilyID)
	}

	if _, err := s.api.Health(ctx); err != nil {
		s.logger.Warn("Server is not reachable, changes will sync later", "server_url", serverURL, "error", err)
	}

	// Id устройства берется из токена, иначе сервер отклонит батч с 403
	if err := s.store.SetDeviceID(ctx, claims.DeviceID); err != nil {
		return nil, fmt.Errorf("failed to save device id: %w", err)
	}
	if err := s.store.SaveCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}

	s.logger.Info("Device enrolled",
		"family_id", creds.FamilyID,
		"device_id", claims.DeviceID,
		"member", creds.Member)
	return creds, nil
}

// Logout forgets the token. Queued mutations stay and sync after the next enroll.
func (s *service) Logout(ctx context.Context) error {
	if err := s.store.DeleteCredentials(ctx); err != nil {
		if errors.Is(err, storage.ErrCredentialsNotFound) {
			return ErrNotEnrolled
		}
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

func (s *service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	creds, err := s.store.GetCredentials(ctx)
	switch {
	case errors.Is(err, storage.ErrCredentialsNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	default:
		st.Credentials = creds
	}

	if st.DeviceID, err = s.store.DeviceID(ctx); err != nil {
		return nil, fmt.Errorf("failed to get device id: %w", err)
	}
	if st.Cursor, err = s.store.GetCursor(ctx); err != nil {
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	if st.Pending, err = s.store.PendingCount(ctx); err != nil {
		return nil, fmt.Errorf("failed to count pending mutations: %w", err)
	}
	dead, err := s.store.DeadLetters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	st.DeadLetters = len(dead)

	if st.Credentials != nil {
		_, err := s.api.Health(ctx)
		st.Reachable = err == nil
	}
	return st, nil
}
