package api

import "github.com/golang-jwt/jwt/v5"

// Claims представляет claims токена устройства
type Claims struct {
	FamilyID string `json:"family_id"` // семья, к данным которой дается доступ
	DeviceID string `json:"device_id"` // устройство-владелец токена
	Member   string `json:"member"`    // член семьи, работающий на устройстве
	jwt.RegisteredClaims
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
