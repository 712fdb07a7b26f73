package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"extensao.org/internal/obs"
)

const permCacheKeyPrefix = "extensao:perm:"

// CachedPermissions keeps resolved permission sets in Redis, keyed by the catalog
// fingerprint and the sorted role set. Redis failures fall back to the catalog; they never deny or
// allow on their own.
type CachedPermissions struct {
	catalog *Catalog
	client  redis.Cmdable
	ttl     time.Duration
}

// NewCachedPermissions wraps catalog with a Redis cache. A nil client disables caching.
func NewCachedPermissions(catalog *Catalog, client redis.Cmdable, ttl time.Duration) *CachedPermissions {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedPermissions{catalog: catalog, client: client, ttl: ttl}
}

// Permissions implements PermissionSource.
func (c *CachedPermissions) Permissions(ctx context.Context, roles []string) (map[string]struct{}, error) {
	if c.client == nil {
		return c.catalog.Permissions(ctx, roles)
	}
	key := c.key(roles)
	members, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		obs.Logger().Warn("permission cache read failed", zap.String("key", key), zap.Error(err))
	} else if len(members) > 0 {
		out := make(map[string]struct{}, len(members))
		for _, m := range members {
			out[m] = struct{}{}
		}
		return out, nil
	}

	perms, err := c.catalog.Permissions(ctx, roles)
	if err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		tokens := make([]any, 0, len(perms))
		for tok := range perms {
			tokens = append(tokens, tok)
		}
		pipe := c.client.TxPipeline()
		pipe.SAdd(ctx, key, tokens...)
		pipe.Expire(ctx, key, c.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			obs.Logger().Warn("permission cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return perms, nil
}

// Refresh reloads the catalog and drops cached sets of earlier grants.
func (c *CachedPermissions) Refresh(ctx context.Context) error {
	if err := c.catalog.Refresh(ctx); err != nil {
		return err
	}
	if err := c.Invalidate(ctx); err != nil {
		obs.Logger().Warn("permission cache invalidation failed", zap.Error(err))
	}
	return nil
}

// Invalidate deletes every cached permission set. Entries of the current grants are
// rebuilt on demand.
func (c *CachedPermissions) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, permCacheKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("auth: scan permission cache: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("auth: delete permission cache: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *CachedPermissions) key(roles []string) string {
	norm := dedupeRoles(roles)
	sort.Strings(norm)
	return fmt.Sprintf("%s%s:%s", permCacheKeyPrefix, c.catalog.Fingerprint(), strings.Join(norm, ","))
}
