package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/famsync/pkg/api"
)

// ErrInvalidToken means the token cannot be used to enroll this device
var ErrInvalidToken = errors.New("invalid device token")

// ParseToken reads the claims of a device token without verifying its signature.
// The client has no signing key; the server verifies the token on every request.
func ParseToken(token string) (*api.Claims, error) {
	claims := &api.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.FamilyID == "" || claims.DeviceID == "" {
		return nil, fmt.Errorf("%w: family_id and device_id are required", ErrInvalidToken)
	}
	return claims, nil
}
