package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisDecisionCache implements DecisionCache on Redis. Each form gets one
// hash keyed by form ID, with one field per (user, required-level) pair.
// Invalidation deletes the whole hash, so a sharing mutation drops every
// cached decision for the form in one command.
type RedisDecisionCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// cachedDecision is the wire form of one cached AccessDecision. Only the
// verdict is cached; the form record is deliberately left out so a cached
// decision can never serve a stale title or scope. Consumers that need the
// record fetch it from storage.
type cachedDecision struct {
	HasAccess  bool            `json:"has_access"`
	IsMember   bool            `json:"is_member"`
	Permission PermissionLevel `json:"permission"`
}

// NewRedisDecisionCache connects to Redis and returns a decision cache with
// the given entry TTL (default 5 minutes).
func NewRedisDecisionCache(redisAddr, password string, ttl time.Duration) (*RedisDecisionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       0,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisDecisionCacheWithClient(client, ttl), nil
}

// NewRedisDecisionCacheWithClient wraps an existing client. Tests use this
// with miniredis.
func NewRedisDecisionCacheWithClient(client *redis.Client, ttl time.Duration) *RedisDecisionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisDecisionCache{redis: client, ttl: ttl}
}

// Get returns a cached decision, treating every failure as a miss.
func (c *RedisDecisionCache) Get(ctx context.Context, formID, key string) (*AccessDecision, bool) {
	data, err := c.redis.HGet(ctx, c.formKey(formID), key).Result()
	if err != nil {
		result := "miss"
		if err != redis.Nil {
			result = "error"
		}
		decisionCacheOpsTotal.WithLabelValues("get", result).Inc()
		return nil, false
	}

	var entry cachedDecision
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		decisionCacheOpsTotal.WithLabelValues("get", "error").Inc()
		return nil, false
	}

	decisionCacheOpsTotal.WithLabelValues("get", "hit").Inc()
	return &AccessDecision{
		HasAccess:  entry.HasAccess,
		IsMember:   entry.IsMember,
		Permission: entry.Permission,
	}, true
}

// Set stores a decision. Failures are ignored; the cache is an optimization.
func (c *RedisDecisionCache) Set(ctx context.Context, formID, key string, decision *AccessDecision) {
	data, err := json.Marshal(cachedDecision{
		HasAccess:  decision.HasAccess,
		IsMember:   decision.IsMember,
		Permission: decision.Permission,
	})
	if err != nil {
		return
	}

	formKey := c.formKey(formID)
	pipe := c.redis.Pipeline()
	pipe.HSet(ctx, formKey, key, data)
	pipe.Expire(ctx, formKey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		decisionCacheOpsTotal.WithLabelValues("set", "error").Inc()
		return
	}
	decisionCacheOpsTotal.WithLabelValues("set", "ok").Inc()
}

// InvalidateForm drops every cached decision for a form.
func (c *RedisDecisionCache) InvalidateForm(ctx context.Context, formID string) error {
	if err := c.redis.Del(ctx, c.formKey(formID)).Err(); err != nil {
		decisionCacheOpsTotal.WithLabelValues("invalidate", "error").Inc()
		return fmt.Errorf("failed to invalidate decisions for form %s: %w", formID, err)
	}
	decisionCacheOpsTotal.WithLabelValues("invalidate", "ok").Inc()
	return nil
}

// Close closes the Redis connection.
func (c *RedisDecisionCache) Close() error {
	return c.redis.Close()
}

func (c *RedisDecisionCache) formKey(formID string) string {
	return "formhive:access:decisions:" + formID
}
