package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

// RateLimiter decides whether the client identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, RateLimitInfo, error)
}

// RateLimitInfo is the limiter state reported in response headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// KeyFunc extracts the rate limit key; nil uses the client address.
	KeyFunc   func(r *http.Request) string
	SkipPaths []string
}

// ClientIPKey keys on the client address.  chi's RealIP middleware has
// already folded X-Forwarded-For into RemoteAddr.
func ClientIPKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}

// --- token bucket ---

type bucket struct {
	tokens float64
	seen   time.Time
}

// TokenBucketLimiter keeps one bucket per key in process memory.  Buckets
// idle for longer than idleTTL are swept during later calls.
type TokenBucketLimiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	idleTTL   time.Duration
	buckets   map[string]bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewTokenBucketLimiter refills rate tokens per second up to burst.  A
// non-positive idleTTL keeps every bucket.
func NewTokenBucketLimiter(rate float64, burst int, idleTTL time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:    rate,
		burst:   float64(burst),
		idleTTL: idleTTL,
		buckets: make(map[string]bucket),
		now:     time.Now,
	}
}

func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, RateLimitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = bucket{tokens: l.burst}
	} else {
		b.tokens = min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.rate)
	}
	b.seen = now

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	l.buckets[key] = b

	info := RateLimitInfo{
		Limit:     int(l.burst),
		Remaining: int(b.tokens),
		ResetAt:   now.Add(time.Duration(float64(time.Second) / l.rate)),
	}
	return allowed, info, nil
}

// sweep drops idle buckets at most once per idleTTL.  An idle bucket has
// refilled completely, so dropping it loses nothing.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	if l.idleTTL <= 0 || now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.seen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// BucketCount reports how many keys hold a bucket.
func (l *TokenBucketLimiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// --- shared window ---

// WindowCounter counts hits per key in fixed windows, e.g. in Redis.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// WindowLimiter allows limit requests per window per key.  Every replica
// sharing the counter enforces the same budget.
type WindowLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewWindowLimiter(counter WindowCounter, limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{counter: counter, limit: limit, window: window, now: time.Now}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, RateLimitInfo, error) {
	n, ttl, err := l.counter.Hit(ctx, key, l.window)
	if err != nil {
		return false, RateLimitInfo{}, err
	}
	info := RateLimitInfo{Limit: l.limit, ResetAt: l.now().Add(ttl)}
	if n > int64(l.limit) {
		return false, info, nil
	}
	info.Remaining = l.limit - int(n)
	return true, info, nil
}

// --- middleware ---

// RateLimitMiddleware rejects requests over the limit with 429.  Limiter
// errors let the request through.
type RateLimitMiddleware struct {
	limiter RateLimiter
	keyFunc func(r *http.Request) string
	skip    map[string]bool
	logger  logging.Logger
}

func NewRateLimitMiddleware(limiter RateLimiter, config RateLimitConfig, logger logging.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIPKey
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	return &RateLimitMiddleware{limiter: limiter, keyFunc: keyFunc, skip: skip, logger: logger}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		allowed, info, err := m.limiter.Allow(r.Context(), m.keyFunc(r))
		if err != nil {
			m.logger.Warn("rate limiter unavailable", logging.Err(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		if !allowed {
			retryAfter := max(int(math.Ceil(time.Until(info.ResetAt).Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(errors.HTTPStatusForCode(errors.ErrCodeRateLimited))
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    string(errors.ErrCodeRateLimited),
				"message": errors.DefaultMessageForCode(errors.ErrCodeRateLimited),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

//Personal.AI order the ending
