package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonLogger пишет записи в буфер, по одной JSON-строке
func jsonLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal(raw, &line))
		lines = append(lines, line)
	}
	return lines
}

func TestRequestLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "ok", status: http.StatusOK, wantLevel: "INFO"},
		{name: "client error", status: http.StatusConflict, wantLevel: "WARN"},
		{name: "server error", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := jsonLogger()
			handler := RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			lines := logLines(t, buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.wantLevel, lines[0]["level"])
			assert.Equal(t, "HTTP request", lines[0]["msg"])
			assert.Equal(t, "POST", lines[0]["method"])
			assert.Equal(t, "/api/v1/sync", lines[0]["path"])
			assert.EqualValues(t, tt.status, lines[0]["status"])
			assert.EqualValues(t, 5, lines[0]["bytes"])
		})
	}
}

func TestRequestLogging_DefaultStatusIsOK(t *testing.T) {
	logger, buf := jsonLogger()
	handler := RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/conflicts", nil))

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.EqualValues(t, http.StatusOK, lines[0]["status"])
}

func TestRequestLogging_SkipsPaths(t *testing.T) {
	logger, buf := jsonLogger()
	handler := RequestLogging(logger, "/api/v1/health", "/metrics")(http.HandlerFunc(okHandler))

	for _, path := range []string{"/api/v1/health", "/metrics"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, buf.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil))
	assert.Len(t, logLines(t, buf), 1)
}

func TestRequestLogging_IncludesDeviceAndRequestID(t *testing.T) {
	logger, buf := jsonLogger()
	quiet := setupTestLogger()

	handler := chimiddleware.RequestID(
		RequestLogging(logger)(
			AuthMiddleware(quiet, testJWT, nil)(http.HandlerFunc(okHandler))))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, testJWT, "fam", "devA"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "fam", lines[0]["family_id"])
	assert.Equal(t, "devA", lines[0]["device_id"])
	assert.NotEmpty(t, lines[0]["request_id"])
	assert.NotContains(t, buf.String(), "Bearer", "token must not be logged")
}

func TestRequestLogging_AnonymousRequestHasNoDevice(t *testing.T) {
	logger, buf := jsonLogger()
	handler := RequestLogging(logger)(AuthMiddleware(setupTestLogger(), testJWT, nil)(notCalled(t)))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil))

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.EqualValues(t, http.StatusUnauthorized, lines[0]["status"])
	assert.NotContains(t, lines[0], "device_id")
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

	_, _, err := rec.Hijack()
	assert.Error(t, err)
}

func TestAnnotate_WithoutRequestInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.NotPanics(t, func() { annotate(req.Context(), "fam", "devA") })
	assert.Nil(t, requestInfoFrom(req.Context()))
}
