package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/iudanet/famsync/internal/metrics"
	"github.com/iudanet/famsync/internal/server/handlers"
)

// Limiter - token bucket на каждый ключ. Бакет вмещает rate запросов
// и пополняется равномерно, полностью за window.
type Limiter struct {
	buckets   map[string]*bucket
	now       func() time.Time
	lastPrune time.Time
	window    time.Duration
	perToken  time.Duration // время пополнения одного токена
	rate      float64
	mu        sync.Mutex
}

type bucket struct {
	updated time.Time
	tokens  float64
}

// NewLimiter creates a limiter allowing rate requests per window and key.
func NewLimiter(rate int, window time.Duration) *Limiter {
	if rate < 1 {
		rate = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		now:      time.Now,
		window:   window,
		perToken: window / time.Duration(rate),
		rate:     float64(rate),
	}
}

// Allow takes a token for key. When the bucket is empty it returns false and
// the time until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.rate, updated: now}
		l.buckets[key] = b
	}

	// Пополняем пропорционально прошедшему времени, не выше емкости
	if elapsed := now.Sub(b.updated); elapsed > 0 {
		b.tokens = math.Min(l.rate, b.tokens+float64(elapsed)/float64(l.perToken))
		b.updated = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) * float64(l.perToken))
	return false, wait
}

// prune удаляет бакеты, которые успели заполниться полностью: они неотличимы от новых
func (l *Limiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now
	for key, b := range l.buckets {
		if now.Sub(b.updated) >= l.window {
			delete(l.buckets, key)
		}
	}
}

// size returns the number of tracked keys
func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimitMiddleware ограничивает частоту запросов одного устройства.
// Ставится после AuthMiddleware; запросы без claims ограничиваются по IP.
// Ответ 429 клиент синхронизации считает временной ошибкой.
func RateLimitMiddleware(rate int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return rateLimit(NewLimiter(rate, window), logger)
}

func rateLimit(limiter *Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			ok, wait := limiter.Allow(key)
			if !ok {
				metrics.ObserveRateLimited()
				logger.Warn("Rate limit exceeded", "key", key, "path", r.URL.Path, "retry_after", wait)

				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if claims, ok := handlers.GetClaims(r.Context()); ok {
		return "device:" + claims.DeviceID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
