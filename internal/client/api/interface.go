package api

import (
	"context"

	"github.com/iudanet/famsync/pkg/api"
)

//go:generate moq -out clientapi_mock.go . ClientAPI

// ClientAPI описывает транспорт между устройством и сервером синхронизации
type ClientAPI interface {
	// Sync отправляет батч мутаций и получает результаты и дельту изменений.
	// 200 и 207 считаются успехом, остальное возвращается как *StatusError.
	Sync(ctx context.Context, token string, req api.SyncRequest) (*api.SyncResponse, error)

	// Health проверяет доступность сервера
	Health(ctx context.Context) (*api.HealthResponse, error)

	// ListenNudges держит websocket соединение и вызывает fn на каждый nudge.
	// Возвращается при закрытии соединения или отмене ctx.
	ListenNudges(ctx context.Context, token string, fn func(api.Nudge)) error
}
