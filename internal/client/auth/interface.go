package auth

import (
	"context"

	"github.com/iudanet/famsync/internal/client/storage"
)

//go:generate moq -out service_mock.go . Service

// Service defines device enrollment operations.
// A device is enrolled with a token minted by `famsync-server token`;
// there is no interactive login.
type Service interface {
	// Enroll проверяет токен, сохраняет учетные данные и id устройства из токена
	Enroll(ctx context.Context, serverURL, token string) (*storage.Credentials, error)

	// Logout удаляет учетные данные; очередь мутаций остается на диске
	Logout(ctx context.Context) error

	// Status собирает состояние устройства для команды status
	Status(ctx context.Context) (*Status, error)
}
