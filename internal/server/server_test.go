package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/resolver"
	"github.com/iudanet/famsync/internal/server/handlers"
	"github.com/iudanet/famsync/internal/server/nudge"
	"github.com/iudanet/famsync/internal/server/storage"
	"github.com/iudanet/famsync/internal/server/storage/sqlite"
	"github.com/iudanet/famsync/pkg/api"
)

var jwtConfig = handlers.JWTConfig{Secret: []byte("test-secret-0123456789")}

type testServer struct {
	*httptest.Server
	hub    *nudge.Hub
	tokens map[string]string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tokens := make(map[string]string)
	for _, id := range []string{"devA", "devB"} {
		require.NoError(t, store.RegisterDevice(ctx, &storage.Device{
			ID:        id,
			FamilyID:  "fam",
			Member:    "alice",
			CreatedAt: time.Now(),
		}))
		token, _, err := handlers.GenerateDeviceToken(jwtConfig, "fam", id, "alice")
		require.NoError(t, err)
		tokens[id] = token
	}

	hub := nudge.NewHub(nudge.Config{}, logger)
	router := NewRouter(Options{
		Store:      store,
		Applier:    applier.New(resolver.New(), logger),
		Hub:        hub,
		Logger:     logger,
		JWT:        jwtConfig,
		RateLimit:  100,
		RateWindow: time.Minute,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub, tokens: tokens}
}

func (s *testServer) sync(t *testing.T, device string, req api.SyncRequest) (*http.Response, api.SyncResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/sync", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Authorization", "Bearer "+s.tokens[device])

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out api.SyncResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestRouter_Health(t *testing.T) {
	srv := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestRouter_RequiresToken(t *testing.T) {
	srv := setupTestServer(t)

	for _, path := range []string{"/api/v1/sync", "/api/v1/conflicts", "/api/v1/nudge"} {
		t.Run(path, func(t *testing.T) {
			method := http.MethodGet
			if path == "/api/v1/sync" {
				method = http.MethodPost
			}
			req, err := http.NewRequest(method, srv.URL+path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRouter_SyncAndMetrics(t *testing.T) {
	srv := setupTestServer(t)

	resp, out := srv.sync(t, "devA", api.SyncRequest{
		DeviceID: "devA",
		Mutations: []api.Mutation{{
			MutationID:      1,
			EntityType:      "task",
			EntityID:        "11111111-1111-4111-8111-111111111111",
			Operation:       "create",
			Payload:         map[string]json.RawMessage{"title": json.RawMessage(`"Dishes"`)},
			ClientTimestamp: time.Now(),
		}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Results, 1)
	assert.Equal(t, api.OutcomeApplied, out.Results[0].Outcome)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = metricsResp.Body.Close() }()

	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "famsync_sync_batches_total")
	assert.Contains(t, string(body), "famsync_mutations_total")
}

func TestRouter_NudgeReachesOtherDevice(t *testing.T) {
	srv := setupTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/nudge"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+srv.tokens["devB"])

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return srv.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	syncResp, _ := srv.sync(t, "devA", api.SyncRequest{
		DeviceID: "devA",
		Mutations: []api.Mutation{{
			MutationID:      1,
			EntityType:      "task",
			EntityID:        "22222222-2222-4222-8222-222222222222",
			Operation:       "create",
			Payload:         map[string]json.RawMessage{"title": json.RawMessage(`"Laundry"`)},
			ClientTimestamp: time.Now(),
		}},
	})
	require.Equal(t, http.StatusOK, syncResp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n api.Nudge
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "fam", n.FamilyID)
	assert.Equal(t, "devA", n.DeviceID)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Берем свободный порт и сразу освобождаем его
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	hub := nudge.NewHub(nudge.Config{}, logger)
	srv := New(addr, http.NotFoundHandler(), hub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
