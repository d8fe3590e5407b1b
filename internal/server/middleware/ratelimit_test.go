package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNow управляемые часы для лимитера
type fakeNow struct {
	t  time.Time
	mu sync.Mutex
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func testLimiter(rate int, window time.Duration) (*Limiter, *fakeNow) {
	clock := &fakeNow{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	l := NewLimiter(rate, window)
	l.now = clock.now
	return l, clock
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l, clock := testLimiter(3, 3*time.Second)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("device:devA")
		require.True(t, ok, "request %d", i)
	}

	ok, wait := l.Allow("device:devA")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	// Один токен возвращается за window/rate
	clock.advance(time.Second)
	ok, _ = l.Allow("device:devA")
	assert.True(t, ok)
	ok, _ = l.Allow("device:devA")
	assert.False(t, ok)
}

func TestLimiter_PartialRefillShortensWait(t *testing.T) {
	l, clock := testLimiter(1, time.Minute)

	ok, _ := l.Allow("k")
	require.True(t, ok)

	clock.advance(45 * time.Second)
	ok, wait := l.Allow("k")
	assert.False(t, ok)
	assert.InDelta(t, float64(15*time.Second), float64(wait), float64(time.Millisecond))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := testLimiter(1, time.Minute)

	ok, _ := l.Allow("device:devA")
	assert.True(t, ok)
	ok, _ = l.Allow("device:devA")
	assert.False(t, ok)
	ok, _ = l.Allow("device:devB")
	assert.True(t, ok)
}

func TestLimiter_RefillCapsAtRate(t *testing.T) {
	l, clock := testLimiter(2, time.Second)

	clock.advance(time.Hour)
	allowed := 0
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("k"); ok {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestLimiter_PrunesIdleBuckets(t *testing.T) {
	l, clock := testLimiter(5, time.Minute)

	l.Allow("device:devA")
	l.Allow("device:devB")
	require.Equal(t, 2, l.size())

	clock.advance(2 * time.Minute)
	l.Allow("device:devC")
	assert.Equal(t, 1, l.size())
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(0, 0)

	assert.Equal(t, float64(1), l.rate)
	assert.Equal(t, time.Minute, l.window)
}

func TestRateLimitMiddleware_KeysByDevice(t *testing.T) {
	limiter, _ := testLimiter(1, time.Minute)
	logger := setupTestLogger()
	handler := AuthMiddleware(logger, testJWT, nil)(rateLimit(limiter, logger)(http.HandlerFunc(okHandler)))

	tokenA := "Bearer " + mustToken(t, testJWT, "fam", "devA")
	tokenB := "Bearer " + mustToken(t, testJWT, "fam", "devB")

	assert.Equal(t, http.StatusOK, serve(handler, tokenA).Code)

	w := serve(handler, tokenA)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "Too Many Requests", decodeError(t, w).Error)

	// Другое устройство за тем же адресом не страдает
	assert.Equal(t, http.StatusOK, serve(handler, tokenB).Code)
}

func TestRateLimitMiddleware_AnonymousByIP(t *testing.T) {
	handler := RateLimitMiddleware(1, time.Minute, setupTestLogger())(http.HandlerFunc(okHandler))

	request := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1:5001"), "port is not part of the key")
	assert.Equal(t, http.StatusOK, request("10.0.0.2:5000"))
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.7:41000"
	assert.Equal(t, "ip:192.168.1.7", rateLimitKey(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "ip:pipe", rateLimitKey(req))
}
