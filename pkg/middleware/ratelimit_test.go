package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formhive/formhive/pkg/auth"
)

func authedRequest(r *http.Request, authCtx *auth.AuthContext) *http.Request {
	return r.WithContext(auth.NewContext(r.Context(), authCtx))
}

func TestRateLimiter_AllowWithinBudget(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	})

	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("caller") {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed, "sustained rate plus burst")

	time.Sleep(time.Second)
	assert.True(t, limiter.Allow("caller"), "allowance refills over time")
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	})

	assert.Equal(t, 12, limiter.Remaining("caller"), "unseen caller has the full allowance")

	limiter.Allow("caller")
	assert.Equal(t, 11, limiter.Remaining("caller"))
}

func TestRateLimiter_PartialRefill(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         0,
	})

	for i := 0; i < 10; i++ {
		limiter.Allow("caller")
	}
	require.False(t, limiter.Allow("caller"))

	time.Sleep(time.Second / 2)
	assert.True(t, limiter.Allow("caller"), "tokens credited mid-window")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    100 * time.Millisecond,
		BurstSize:         2,
	})

	for _, key := range []string{"a", "b", "c"} {
		limiter.Allow(key)
	}
	require.Len(t, limiter.buckets, 3)

	time.Sleep(300 * time.Millisecond)
	limiter.Cleanup()
	assert.Empty(t, limiter.buckets, "idle buckets are dropped")
}

func TestRateLimiter_StartCleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    50 * time.Millisecond,
		BurstSize:         2,
	})
	limiter.Allow("a")
	limiter.Allow("b")

	ctx, cancel := context.WithCancel(context.Background())
	limiter.StartCleanup(ctx)

	assert.Eventually(t, func() bool {
		limiter.mu.RLock()
		defer limiter.mu.RUnlock()
		return len(limiter.buckets) == 0
	}, time.Second, 25*time.Millisecond)

	cancel()
}

func TestRateLimiter_NilConfigUsesDefaults(t *testing.T) {
	limiter := NewRateLimiter(nil)
	require.NotNil(t, limiter.config)
	assert.Equal(t, DefaultRateLimitConfig().RequestsPerWindow, limiter.config.RequestsPerWindow)
}

func TestRateLimiter_Concurrency(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Second,
		BurstSize:         10,
	})

	results := make(chan bool, 200)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 20; j++ {
				results <- limiter.Allow("caller")
			}
		}()
	}

	allowed := 0
	for i := 0; i < 200; i++ {
		if <-results {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, 110, "concurrent callers cannot exceed the allowance")
}

func TestRateLimitConfig_ClassOrdering(t *testing.T) {
	anon := DefaultRateLimitConfig()
	user := PerUserRateLimitConfig()
	bot := PerBotRateLimitConfig()

	assert.Greater(t, user.RequestsPerWindow, anon.RequestsPerWindow)
	assert.Greater(t, bot.RequestsPerWindow, user.RequestsPerWindow)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"X-Forwarded-For", map[string]string{"X-Forwarded-For": "192.168.1.1"}, "10.0.0.1:12345", "192.168.1.1"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "192.168.1.2"}, "10.0.0.1:12345", "192.168.1.2"},
		{"RemoteAddr fallback", nil, "10.0.0.1:12345", "10.0.0.1:12345"},
		{"forwarded wins over real IP",
			map[string]string{"X-Forwarded-For": "192.168.1.1", "X-Real-IP": "192.168.1.2"},
			"10.0.0.1:12345", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}

func TestRateLimitMiddleware_Anonymous(t *testing.T) {
	middleware := NewRateLimitMiddleware()
	middleware.anonymousLimiter.config = &RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Second,
		BurstSize:         1,
	}

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/forms", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "request %d within allowance", i+1)
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	}

	req := httptest.NewRequest(http.MethodGet, "/forms", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRateLimitMiddleware_AuthenticatedUser(t *testing.T) {
	middleware := NewRateLimitMiddleware()
	middleware.userLimiter.config = &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Second,
		BurstSize:         0,
	}

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/forms", nil),
		&auth.AuthContext{User: &auth.User{ID: 123}})

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitMiddleware_BotGetsLargerAllowance(t *testing.T) {
	middleware := NewRateLimitMiddleware()
	middleware.userLimiter.config = &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Second,
		BurstSize:         0,
	}
	middleware.botLimiter.config = &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         0,
	}

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	botReq := authedRequest(httptest.NewRequest(http.MethodGet, "/forms", nil),
		&auth.AuthContext{User: &auth.User{ID: 456, IsBot: true}})

	// A bot keeps going well past the user allowance.
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, botReq)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, botReq)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitMiddleware_CallersAreIndependent(t *testing.T) {
	middleware := NewRateLimitMiddleware()
	middleware.anonymousLimiter.config = &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Second,
		BurstSize:         0,
	}

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/forms", nil)
	first.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different IP still has its own allowance.
	second := httptest.NewRequest(http.MethodGet, "/forms", nil)
	second.RemoteAddr = "192.168.1.2:12345"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_KeyedByForwardedFor(t *testing.T) {
	middleware := NewRateLimitMiddleware()
	middleware.anonymousLimiter.config = &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Second,
		BurstSize:         0,
	}

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Same proxy, different clients behind it.
	req := httptest.NewRequest(http.MethodGet, "/forms", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	other := httptest.NewRequest(http.MethodGet, "/forms", nil)
	other.RemoteAddr = "10.0.0.1:12345"
	other.Header.Set("X-Forwarded-For", "203.0.113.8")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_ThrottledHeaders(t *testing.T) {
	middleware := NewRateLimitMiddleware()
	middleware.anonymousLimiter.config = &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Second,
		BurstSize:         0,
	}

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/forms", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	for _, header := range []string{"Content-Type", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		assert.NotEmpty(t, rec.Header().Get(header), "header %s", header)
	}
}
