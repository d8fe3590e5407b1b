package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/famsync/internal/server/handlers"
	"github.com/iudanet/famsync/internal/server/storage"
)

// DeviceRegistry отвечает на вопрос, зарегистрировано ли устройство
type DeviceRegistry interface {
	GetDevice(ctx context.Context, deviceID string) (*storage.Device, error)
}

// AuthMiddleware проверяет JWT токен устройства и кладет claims в контекст.
// Если registry не nil, устройство должно быть зарегистрировано, не отозвано
// и принадлежать семье из токена.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig, registry DeviceRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, reason := bearerToken(r)
			if reason != "" {
				logger.Warn("Rejected request without device token", "reason", reason, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, reason)
				return
			}

			claims, err := handlers.ValidateDeviceToken(jwtConfig, token)
			if err != nil {
				logger.Warn("Invalid device token", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if registry != nil {
				status, reason := checkDevice(r.Context(), registry, claims.DeviceID, claims.FamilyID)
				if status != http.StatusOK {
					logger.Warn("Device refused",
						"reason", reason,
						"device_id", claims.DeviceID,
						"family_id", claims.FamilyID)
					writeError(w, status, reason)
					return
				}
			}

			annotate(r.Context(), claims.FamilyID, claims.DeviceID)
			logger.Debug("Device authenticated",
				"family_id", claims.FamilyID,
				"device_id", claims.DeviceID,
				"member", claims.Member)

			next.ServeHTTP(w, r.WithContext(handlers.WithClaims(r.Context(), claims)))
		})
	}
}

// bearerToken извлекает токен из "Authorization: Bearer <token>".
// Непустая причина означает отказ.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing token"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", "invalid token format"
	}
	return strings.TrimSpace(token), ""
}

// checkDevice сверяет токен с реестром устройств
func checkDevice(ctx context.Context, registry DeviceRegistry, deviceID, familyID string) (int, string) {
	device, err := registry.GetDevice(ctx, deviceID)
	switch {
	case errors.Is(err, storage.ErrDeviceNotFound):
		return http.StatusUnauthorized, "unknown device"
	case err != nil:
		return http.StatusInternalServerError, "device lookup failed"
	case device.Revoked():
		return http.StatusUnauthorized, "device revoked"
	case device.FamilyID != familyID:
		return http.StatusForbidden, "family mismatch"
	}
	return http.StatusOK, ""
}
