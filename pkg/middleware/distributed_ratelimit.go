package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/formhive/formhive/pkg/httputil"
)

// DistributedRateLimiter counts requests in Redis so every API instance
// draws from the same allowance.
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a Redis-backed limiter under the
// given key prefix.
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts the request against the caller's window. On a Redis
// error it reports allowed alongside the error; the caller decides
// whether to fail open.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.key(key)

	// INCR and EXPIRE in one round trip; the expiry starts the window
	// on the first request.
	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining returns how much of the window's allowance is left.
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TTL returns how long until the caller's window resets.
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.key(key)).Result()
}

// Reset clears a caller's counter.
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// DistributedRateLimitMiddleware throttles requests against shared
// Redis counters, with the same per-class allowances as the in-process
// middleware.
type DistributedRateLimitMiddleware struct {
	redis            *redis.Client
	userLimiter      *DistributedRateLimiter
	botLimiter       *DistributedRateLimiter
	anonymousLimiter *DistributedRateLimiter
	fallbackEnabled  bool
}

// NewDistributedRateLimitMiddleware creates the middleware. It fails
// open on Redis errors until SetFallbackEnabled(false) is called.
func NewDistributedRateLimitMiddleware(redisClient *redis.Client) *DistributedRateLimitMiddleware {
	return &DistributedRateLimitMiddleware{
		redis:            redisClient,
		userLimiter:      NewDistributedRateLimiter(redisClient, PerUserRateLimitConfig(), "ratelimit:user"),
		botLimiter:       NewDistributedRateLimiter(redisClient, PerBotRateLimitConfig(), "ratelimit:bot"),
		anonymousLimiter: NewDistributedRateLimiter(redisClient, DefaultRateLimitConfig(), "ratelimit:anon"),
		fallbackEnabled:  true,
	}
}

func (m *DistributedRateLimitMiddleware) limiterFor(r *http.Request) (string, *DistributedRateLimiter) {
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

// Handler enforces the shared rate limit.
func (m *DistributedRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, limiter := m.limiterFor(r)

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			if m.fallbackEnabled {
				// Redis being down must not take the API down with it.
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteServiceUnavailable(w, "rate limiting unavailable")
			return
		}

		if !allowed {
			m.rejectThrottled(ctx, w, limiter, key)
			return
		}

		remaining, err := limiter.Remaining(ctx, key)
		if err != nil {
			// Serve the request without allowance headers.
			next.ServeHTTP(w, r)
			return
		}

		resetIn := limiter.config.WindowDuration
		if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
			resetIn = ttl
		}
		writeRateLimitHeaders(w, limiter.config, remaining, resetIn)

		next.ServeHTTP(w, r)
	})
}

func (m *DistributedRateLimitMiddleware) rejectThrottled(ctx context.Context, w http.ResponseWriter, limiter *DistributedRateLimiter, key string) {
	retryIn := limiter.config.WindowDuration
	if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
		retryIn = ttl
	}

	writeRateLimitHeaders(w, limiter.config, 0, retryIn)
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryIn.Seconds()))
	httputil.WriteTooManyRequests(w, "rate limit exceeded")
}

// SetFallbackEnabled chooses between failing open (true) and closed
// (false) when Redis is unreachable.
func (m *DistributedRateLimitMiddleware) SetFallbackEnabled(enabled bool) {
	m.fallbackEnabled = enabled
}

// HealthCheck verifies the backing Redis is reachable.
func (m *DistributedRateLimitMiddleware) HealthCheck(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}

// GetStats reports how many callers currently hold a counter in each
// limiter class.
func (m *DistributedRateLimitMiddleware) GetStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, pattern := range []string{"ratelimit:user:*", "ratelimit:bot:*", "ratelimit:anon:*"} {
		keys, err := m.redis.Keys(ctx, pattern).Result()
		if err != nil {
			return nil, err
		}
		stats[pattern] = int64(len(keys))
	}
	return stats, nil
}
