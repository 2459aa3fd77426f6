package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/formhive/formhive/pkg/httputil"
)

// RateLimitConfig bounds how fast one caller may hit the API.
type RateLimitConfig struct {
	// RequestsPerWindow is the sustained allowance per window.
	RequestsPerWindow int
	// WindowDuration is the accounting window.
	WindowDuration time.Duration
	// BurstSize is extra headroom above the sustained rate.
	BurstSize int
}

// DefaultRateLimitConfig is the anonymous-caller allowance.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// PerUserRateLimitConfig is the allowance for authenticated users.
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// PerBotRateLimitConfig is the allowance for bot accounts, which sync
// forms in bulk and legitimately run hotter than people do.
func PerBotRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 5000,
		WindowDuration:    time.Minute,
		BurstSize:         100,
	}
}

// RateLimiter is an in-process token bucket keyed by caller. Limits are
// per instance; the Redis-backed limiter shares them across instances.
type RateLimiter struct {
	config  *RateLimitConfig
	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a limiter; a nil config means the anonymous
// defaults.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) maxTokens() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Allow consumes one token for the key, reporting whether the caller is
// within its allowance.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.maxTokens(), lastUpdate: time.Now()}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	rl.refillLocked(b)
	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the key's unconsumed allowance.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		return rl.maxTokens()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	rl.refillLocked(b)
	return b.tokens
}

// refillLocked credits tokens proportional to the elapsed time. Caller
// holds the bucket's mutex.
func (rl *RateLimiter) refillLocked(b *bucket) {
	now := time.Now()
	elapsed := now.Sub(b.lastUpdate)

	credit := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if credit <= 0 {
		return
	}
	b.tokens += credit
	if max := rl.maxTokens(); b.tokens > max {
		b.tokens = max
	}
	b.lastUpdate = now
}

// Cleanup drops buckets idle for two windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup sweeps idle buckets once per window until the context is
// cancelled.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// RateLimitMiddleware throttles requests per caller, with separate
// allowances for users, bots, and unauthenticated traffic.
type RateLimitMiddleware struct {
	userLimiter      *RateLimiter
	botLimiter       *RateLimiter
	anonymousLimiter *RateLimiter
}

// NewRateLimitMiddleware creates the middleware with the standard
// per-class allowances.
func NewRateLimitMiddleware() *RateLimitMiddleware {
	return &RateLimitMiddleware{
		userLimiter:      NewRateLimiter(PerUserRateLimitConfig()),
		botLimiter:       NewRateLimiter(PerBotRateLimitConfig()),
		anonymousLimiter: NewRateLimiter(DefaultRateLimitConfig()),
	}
}

// limiterFor picks the key and limiter class for a request. Runs after
// the auth middleware so authenticated callers are keyed by user ID,
// everyone else by client IP.
func (m *RateLimitMiddleware) limiterFor(r *http.Request) (string, *RateLimiter) {
	authCtx := GetAuthContext(r)
	if authCtx != nil && authCtx.User != nil {
		key := fmt.Sprintf("user:%d", authCtx.User.ID)
		if authCtx.User.IsBot {
			return key, m.botLimiter
		}
		return key, m.userLimiter
	}
	return "ip:" + getClientIP(r), m.anonymousLimiter
}

// Handler enforces the rate limit and advertises the allowance through
// X-RateLimit headers.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limiter := m.limiterFor(r)

		if !limiter.Allow(key) {
			writeRateLimitHeaders(w, limiter.config, 0, limiter.config.WindowDuration)
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", limiter.config.WindowDuration.Seconds()))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		writeRateLimitHeaders(w, limiter.config, limiter.Remaining(key), limiter.config.WindowDuration)
		next.ServeHTTP(w, r)
	})
}

// writeRateLimitHeaders sets the standard allowance headers.
func writeRateLimitHeaders(w http.ResponseWriter, config *RateLimitConfig, remaining int, resetIn time.Duration) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(resetIn).Unix()))
}

// getClientIP resolves the caller's address, trusting proxy headers
// when present.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
