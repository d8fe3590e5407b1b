package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/famsync/pkg/api"
)

const tokenIssuer = "famsync"

// JWTConfig содержит конфигурацию для JWT
type JWTConfig struct {
	Secret   []byte
	TokenTTL time.Duration // 0 - токен без срока действия
}

// GenerateDeviceToken создает JWT токен устройства
func GenerateDeviceToken(cfg JWTConfig, familyID, deviceID, member string) (string, time.Time, error) {
	if familyID == "" || deviceID == "" {
		return "", time.Time{}, errors.New("family_id and device_id are required")
	}

	now := time.Now()
	claims := api.Claims{
		FamilyID: familyID,
		DeviceID: deviceID,
		Member:   member,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	var expiresAt time.Time
	if cfg.TokenTTL > 0 {
		expiresAt = now.Add(cfg.TokenTTL)
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateDeviceToken валидирует и парсит JWT токен устройства
func ValidateDeviceToken(cfg JWTConfig, tokenString string) (*api.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &api.Claims{}, func(token *jwt.Token) (any, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*api.Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.FamilyID == "" || claims.DeviceID == "" {
		return nil, errors.New("token has no family or device")
	}

	return claims, nil
}
