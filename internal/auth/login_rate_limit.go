package auth

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tube-accounts/internal/httpx"
	"tube-accounts/internal/observability"
)

const (
	defaultLoginMaxHits = 10
	defaultLoginWindow  = time.Minute
)

// RateLimiter counts hits per key inside a window. A denied hit reports how
// long the caller should wait.
type RateLimiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}

// LoginRateLimit guards the login route per client IP. A limiter that errors
// lets the request through. X-Forwarded-For is only used as the key when
// trustProxy is set.
func LoginRateLimit(limiter RateLimiter, logger *observability.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httpx.ClientIP(r, trustProxy)

			allowed, retryAfter, err := limiter.Allow(r.Context(), "login:"+ip, time.Now().UTC())
			if err != nil {
				logger.Warn("login_rate_limit_unavailable", map[string]any{"ip": ip, "error": err.Error()})
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				recordAuthEvent("login", "rate_limited")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				httpx.WriteError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MemoryRateLimiter is a per-process sliding window. It suits a single
// replica; use RedisRateLimiter or PostgresRateLimiter when scaled out.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitsByKey map[string][]time.Time
	maxKeys   int
}

func NewMemoryRateLimiter(maxHits int, window time.Duration) *MemoryRateLimiter {
	maxHits, window = limiterDefaults(maxHits, window)
	return &MemoryRateLimiter{
		maxHits:   maxHits,
		window:    window,
		hitsByKey: make(map[string][]time.Time),
		maxKeys:   5000,
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hitsByKey[key]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= l.maxHits {
		l.hitsByKey[key] = filtered
		return false, clampRetry(filtered[0].Add(l.window).Sub(now)), nil
	}

	l.hitsByKey[key] = append(filtered, now)

	if len(l.hitsByKey) > l.maxKeys {
		for k, value := range l.hitsByKey {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(l.hitsByKey, k)
			}
		}
	}

	return true, 0, nil
}

func limiterDefaults(maxHits int, window time.Duration) (int, time.Duration) {
	if maxHits <= 0 {
		maxHits = defaultLoginMaxHits
	}
	if window <= 0 {
		window = defaultLoginWindow
	}
	return maxHits, window
}

func clampRetry(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}
