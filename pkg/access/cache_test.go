package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDecisionCache(t *testing.T) (*RedisDecisionCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisDecisionCacheWithClient(client, time.Minute)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestRedisDecisionCache(t *testing.T) {
	cache, _ := setupDecisionCache(t)
	ctx := context.Background()

	formID := "b2c7d7a0-0f42-4f6a-9d1e-0f1d2e3c4b5a"
	key := decisionKey(42, PermissionEditor)

	t.Run("miss before set", func(t *testing.T) {
		_, ok := cache.Get(ctx, formID, key)
		assert.False(t, ok)
	})

	t.Run("hit after set", func(t *testing.T) {
		decision := &AccessDecision{
			HasAccess:  true,
			IsMember:   true,
			Permission: PermissionEditor,
			Form:       &Form{ID: formID, OrganizationID: 1, CreatedByID: 7},
		}
		cache.Set(ctx, formID, key, decision)

		got, ok := cache.Get(ctx, formID, key)
		require.True(t, ok)
		assert.True(t, got.HasAccess)
		assert.True(t, got.IsMember)
		assert.Equal(t, PermissionEditor, got.Permission)
		// Only the verdict is cached; the form record never is.
		assert.Nil(t, got.Form)
	})

	t.Run("keys are scoped per user and level", func(t *testing.T) {
		_, ok := cache.Get(ctx, formID, decisionKey(43, PermissionEditor))
		assert.False(t, ok)
		_, ok = cache.Get(ctx, formID, decisionKey(42, PermissionViewer))
		assert.False(t, ok)
	})

	t.Run("invalidate drops every decision for the form", func(t *testing.T) {
		cache.Set(ctx, formID, decisionKey(43, PermissionViewer), &AccessDecision{HasAccess: true, IsMember: true, Permission: PermissionViewer})

		require.NoError(t, cache.InvalidateForm(ctx, formID))

		_, ok := cache.Get(ctx, formID, key)
		assert.False(t, ok)
		_, ok = cache.Get(ctx, formID, decisionKey(43, PermissionViewer))
		assert.False(t, ok)
	})
}

func TestRedisDecisionCache_TTL(t *testing.T) {
	cache, mr := setupDecisionCache(t)
	ctx := context.Background()

	formID := "ttl-form"
	key := decisionKey(1, PermissionViewer)
	cache.Set(ctx, formID, key, &AccessDecision{HasAccess: true, IsMember: true, Permission: PermissionViewer})

	_, ok := cache.Get(ctx, formID, key)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok = cache.Get(ctx, formID, key)
	assert.False(t, ok)
}

func TestChecker_DecisionCaching(t *testing.T) {
	f := newTestFixture(t)
	cache, _ := setupDecisionCache(t)
	checker := NewChecker(f.store, WithDecisionCache(cache))
	ctx := context.Background()

	owner := f.addUser(t, "owner", false)
	member := f.addUser(t, "member", false)
	formID := f.addForm(t, owner, ScopeAllOrgMembers, PermissionViewer)

	decision, err := checker.CheckFormAccess(ctx, member, formID, PermissionViewer)
	require.NoError(t, err)
	require.True(t, decision.HasAccess)

	// The decision is now served from the cache: deleting the form from
	// the store does not surface until the cache is invalidated.
	_, err = f.db.Exec("DELETE FROM forms WHERE id = ?", formID)
	require.NoError(t, err)

	decision, err = checker.CheckFormAccess(ctx, member, formID, PermissionViewer)
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)

	require.NoError(t, cache.InvalidateForm(ctx, formID))

	_, err = checker.CheckFormAccess(ctx, member, formID, PermissionViewer)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSharingMutations_InvalidateDecisionCache(t *testing.T) {
	f := newTestFixture(t)
	cache, _ := setupDecisionCache(t)
	checker := NewChecker(f.store, WithDecisionCache(cache))
	svc := NewSharingService(f.store, checker, WithSharingCache(cache))
	ctx := context.Background()

	owner := f.addUser(t, "owner", false)
	member := f.addUser(t, "member", false)
	formID := f.addForm(t, owner, ScopeAllOrgMembers, PermissionViewer)

	decision, err := checker.CheckFormAccess(ctx, member, formID, PermissionViewer)
	require.NoError(t, err)
	require.True(t, decision.HasAccess)

	// Going private must take effect immediately, not after the TTL.
	_, err = svc.ShareForm(ctx, owner, ShareFormInput{
		FormID:       formID,
		SharingScope: ScopePrivate,
	})
	require.NoError(t, err)

	decision, err = checker.CheckFormAccess(ctx, member, formID, PermissionViewer)
	require.NoError(t, err)
	assert.False(t, decision.HasAccess)
}
