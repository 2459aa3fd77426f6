package webhooks

import (
	"sync"
	"time"
)

// RateLimiter caps outbound delivery rate per webhook so one slow or
// flapping subscriber cannot monopolize the delivery workers.
type RateLimiter struct {
	mu           sync.RWMutex
	buckets      map[string]*tokenBucket
	maxTokens    int
	refillPeriod time.Duration
}

// tokenBucket refills one token per period up to its capacity.
type tokenBucket struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillPeriod time.Duration
	lastRefill   time.Time
}

// NewRateLimiter allows a burst of maxRequests deliveries per webhook,
// crediting one delivery back each period.
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:      make(map[string]*tokenBucket),
		maxTokens:    maxRequests,
		refillPeriod: period,
	}
}

// Allow reports whether a delivery to the webhook may proceed now,
// consuming a token when it does.
func (rl *RateLimiter) Allow(webhookID string) bool {
	return rl.bucket(webhookID).take()
}

// Reset discards the webhook's bucket, restoring its full allowance.
func (rl *RateLimiter) Reset(webhookID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, webhookID)
}

// GetRemaining returns the webhook's unconsumed delivery allowance.
func (rl *RateLimiter) GetRemaining(webhookID string) int {
	rl.mu.RLock()
	bucket, exists := rl.buckets[webhookID]
	rl.mu.RUnlock()

	if !exists {
		return rl.maxTokens
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	bucket.refillLocked()
	return bucket.tokens
}

// bucket returns the webhook's bucket, creating a full one on first use.
func (rl *RateLimiter) bucket(webhookID string) *tokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[webhookID]
	if !exists {
		b = &tokenBucket{
			tokens:       rl.maxTokens,
			maxTokens:    rl.maxTokens,
			refillPeriod: rl.refillPeriod,
			lastRefill:   time.Now(),
		}
		rl.buckets[webhookID] = b
	}
	return b
}

func (tb *tokenBucket) take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// refillLocked credits one token per elapsed period. Caller holds mu.
func (tb *tokenBucket) refillLocked() {
	elapsed := time.Since(tb.lastRefill)
	if elapsed < tb.refillPeriod {
		return
	}
	periods := int(elapsed / tb.refillPeriod)
	tb.tokens = min(tb.tokens+periods, tb.maxTokens)
	tb.lastRefill = tb.lastRefill.Add(time.Duration(periods) * tb.refillPeriod)
}
