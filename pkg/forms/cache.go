package forms

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/formhive/formhive/pkg/access"
	"github.com/formhive/formhive/pkg/storage/postgres"
)

// Cache is a read-through cache for form records, keyed by form ID. Both
// implementations are best-effort: a failed cache operation is reported as
// a miss, never as an error.
type Cache interface {
	Get(ctx context.Context, formID string) (*access.Form, bool)
	Set(ctx context.Context, form *access.Form)
	Invalidate(ctx context.Context, formID string)
}

// LRUCache keeps form records in process memory with a bounded size and a
// TTL. Entries are copied on the way in and out so callers can mutate the
// returned form freely.
type LRUCache struct {
	cache *lru.LRU[string, access.Form]
}

// NewLRUCache creates an in-process cache holding up to size forms, each
// for at most ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		cache: lru.NewLRU[string, access.Form](size, nil, ttl),
	}
}

func (c *LRUCache) Get(_ context.Context, formID string) (*access.Form, bool) {
	form, ok := c.cache.Get(formID)
	if !ok {
		observeFormCacheOp("get", "miss")
		return nil, false
	}
	observeFormCacheOp("get", "hit")
	return &form, true
}

func (c *LRUCache) Set(_ context.Context, form *access.Form) {
	if form == nil {
		return
	}
	c.cache.Add(form.ID, *form)
}

func (c *LRUCache) Invalidate(_ context.Context, formID string) {
	c.cache.Remove(formID)
}

// RedisCache shares form records across instances through Redis.
type RedisCache struct {
	client *postgres.RedisClient
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed form cache with the given TTL.
func NewRedisCache(client *postgres.RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, formID string) (*access.Form, bool) {
	var form access.Form
	found, err := c.client.GetJSON(ctx, c.key(formID), &form)
	if err != nil || !found {
		observeFormCacheOp("get", "miss")
		return nil, false
	}
	observeFormCacheOp("get", "hit")
	return &form, true
}

func (c *RedisCache) Set(ctx context.Context, form *access.Form) {
	if form == nil {
		return
	}
	if err := c.client.SetJSON(ctx, c.key(form.ID), form, c.ttl); err != nil {
		observeFormCacheOp("set", "error")
		return
	}
	observeFormCacheOp("set", "ok")
}

func (c *RedisCache) Invalidate(ctx context.Context, formID string) {
	if err := c.client.Delete(ctx, c.key(formID)); err != nil {
		observeFormCacheOp("invalidate", "error")
		return
	}
	observeFormCacheOp("invalidate", "ok")
}

func (c *RedisCache) key(formID string) string {
	return "formhive:forms:" + formID
}
