package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedPermissionsFallsBackWhenRedisDown(t *testing.T) {
	catalog := loadedCatalog(t, DefaultGrants())
	cache := NewCachedPermissions(catalog, unreachableRedis(t), time.Minute)

	perms, err := cache.Permissions(context.Background(), []string{RoleStudent})
	require.NoError(t, err)
	assert.Contains(t, perms, "proof.create:own")

	r := NewResolver(cache)
	p := NewPrincipal("s1", "", "", []string{RoleStudent})
	assert.NoError(t, r.Authorize(context.Background(), p, StudentResource{StudentID: "s1"}, PermProofCreate))
}

func TestCachedPermissionsWithoutClient(t *testing.T) {
	cache := NewCachedPermissions(loadedCatalog(t, DefaultGrants()), nil, 0)
	perms, err := cache.Permissions(context.Background(), []string{RoleProfessor})
	require.NoError(t, err)
	assert.Contains(t, perms, "activity.delete:own")
	assert.NoError(t, cache.Invalidate(context.Background()))
}

func TestCachedPermissionsPropagatesUnloadedCatalog(t *testing.T) {
	cache := NewCachedPermissions(NewCatalog(DefaultGrants()), unreachableRedis(t), time.Minute)
	_, err := cache.Permissions(context.Background(), []string{RoleAdmin})
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestCachedPermissionsKeyNormalizesRoles(t *testing.T) {
	cache := NewCachedPermissions(loadedCatalog(t, DefaultGrants()), unreachableRedis(t), time.Minute)
	key := cache.key([]string{"professor", "Committee_Member", "professor"})
	assert.True(t, strings.HasPrefix(key, permCacheKeyPrefix), key)
	assert.True(t, strings.HasSuffix(key, ":committee_member,professor"), key)
	assert.Equal(t, key, cache.key([]string{"committee_member", "professor"}))
}

// A restarted process starts its catalog version at 1 again; cached sets written under the
// previous grants must not be read back once a grant has been revoked.
func TestCachedPermissionsKeyChangesWhenGrantsChangeAcrossRestart(t *testing.T) {
	roles := []string{RoleProfessor}
	first := NewCachedPermissions(loadedCatalog(t, DefaultGrants()), unreachableRedis(t), time.Minute)

	same := NewCachedPermissions(loadedCatalog(t, DefaultGrants()), unreachableRedis(t), time.Minute)
	assert.Equal(t, first.key(roles), same.key(roles))

	revoked := DefaultGrants()
	revoked[RoleProfessor] = []string{"user.read:own", "activity.read:any"}
	restarted := NewCachedPermissions(loadedCatalog(t, revoked), unreachableRedis(t), time.Minute)

	assert.EqualValues(t, 1, first.catalog.Version())
	assert.EqualValues(t, 1, restarted.catalog.Version())
	assert.NotEqual(t, first.key(roles), restarted.key(roles))
}

func TestCatalogFingerprintIgnoresOrderAndCase(t *testing.T) {
	a := loadedCatalog(t, StaticGrants{"Student": {"b", "a"}, "admin": {"x"}})
	b := loadedCatalog(t, StaticGrants{"admin": {"x"}, "student": {"a", "b", "a"}})
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEmpty(t, a.Fingerprint())

	c := loadedCatalog(t, StaticGrants{"student": {"a"}, "admin": {"x"}})
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
