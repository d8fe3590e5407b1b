package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpClient "github.com/iudanet/famsync/internal/client/api"
	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/client/storage/boltdb"
	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/pkg/api"
)

func testToken(t *testing.T, family, device string, expires time.Time) string {
	t.Helper()
	claims := api.Claims{FamilyID: family, DeviceID: device, Member: "alice"}
	if !expires.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-side-secret"))
	require.NoError(t, err)
	return token
}

func setupService(t *testing.T, healthErr error) (*service, *boltdb.Storage, *httpClient.ClientAPIMock) {
	t.Helper()
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "famsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mock := &httpClient.ClientAPIMock{
		HealthFunc: func(ctx context.Context) (*api.HealthResponse, error) {
			if healthErr != nil {
				return nil, healthErr
			}
			return &api.HealthResponse{Status: "ok", Time: time.Now()}, nil
		},
	}
	svc := NewService(mock, store, slog.New(slog.NewTextHandler(io.Discard, nil))).(*service)
	return svc, store, mock
}

func TestParseToken(t *testing.T) {
	claims, err := ParseToken(testToken(t, "fam", "devA", time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, "fam", claims.FamilyID)
	assert.Equal(t, "devA", claims.DeviceID)
	assert.Equal(t, "alice", claims.Member)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "no device", token: testToken(t, "fam", "", time.Time{})},
		{name: "no family", token: testToken(t, "", "devA", time.Time{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()
	svc, store, mock := setupService(t, nil)
	expires := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	creds, err := svc.Enroll(ctx, "http://sync.local", "  "+testToken(t, "fam", "devA", expires)+"\n")
	require.NoError(t, err)

	assert.Equal(t, "fam", creds.FamilyID)
	assert.Equal(t, "alice", creds.Member)
	assert.True(t, creds.ExpiresAt.Equal(expires))
	assert.Len(t, mock.HealthCalls(), 1)

	saved, err := store.GetCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds.Token, saved.Token)

	deviceID, err := store.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "devA", deviceID)
}

func TestEnroll_Offline(t *testing.T) {
	svc, store, _ := setupService(t, httpClient.ErrTransport)

	_, err := svc.Enroll(context.Background(), "http://sync.local", testToken(t, "fam", "devA", time.Time{}))
	require.NoError(t, err)

	_, err = store.GetCredentials(context.Background())
	assert.NoError(t, err)
}

func TestEnroll_Rejected(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := setupService(t, nil)

	_, err := svc.Enroll(ctx, "http://sync.local", testToken(t, "fam", "devA", time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = svc.Enroll(ctx, "http://sync.local", "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = store.GetCredentials(ctx)
	assert.ErrorIs(t, err, storage.ErrCredentialsNotFound)

	// Другая семья требует logout
	_, err = svc.Enroll(ctx, "http://sync.local", testToken(t, "fam", "devA", time.Time{}))
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, "http://sync.local", testToken(t, "other", "devA", time.Time{}))
	assert.ErrorIs(t, err, ErrOtherFamily)

	// Та же семья - замена токена
	_, err = svc.Enroll(ctx, "http://sync.local", testToken(t, "fam", "devA2", time.Time{}))
	require.NoError(t, err)
}

func TestLogout_KeepsQueue(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := setupService(t, nil)

	assert.ErrorIs(t, svc.Logout(ctx), ErrNotEnrolled)

	_, err := svc.Enroll(ctx, "http://sync.local", testToken(t, "fam", "devA", time.Time{}))
	require.NoError(t, err)

	_, err = store.Append(ctx, &models.MutationRecord{
		EntityType:      models.EntityTypeTask,
		EntityID:        "11111111-1111-4111-8111-111111111111",
		Operation:       models.OperationCreate,
		Payload:         models.Fields{"title": []byte(`"Dishes"`)},
		ClientTimestamp: time.Now(),
		DeviceID:        "devA",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx))

	_, err = store.GetCredentials(ctx)
	assert.ErrorIs(t, err, storage.ErrCredentialsNotFound)
	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t, nil)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Credentials)
	assert.False(t, st.Reachable)
	assert.NotEmpty(t, st.DeviceID, "device id is generated on first use")

	_, err = svc.Enroll(ctx, "http://sync.local", testToken(t, "fam", "devA", time.Time{}))
	require.NoError(t, err)

	st, err = svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Credentials)
	assert.Equal(t, "devA", st.DeviceID)
	assert.True(t, st.Reachable)
	assert.True(t, st.Cursor.LastSyncedAt.IsZero())
	assert.Zero(t, st.Pending)
}

func TestStatus_Unreachable(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t, errors.New("connection refused"))

	_, err := svc.Enroll(ctx, "http://sync.local", testToken(t, "fam", "devA", time.Time{}))
	require.NoError(t, err)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Reachable)
}
