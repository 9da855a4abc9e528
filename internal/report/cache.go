package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "stockledger:reports"

// Cache stores report results in Redis under a per-tenant version. Bumping
// the version orphans every cached result of that tenant; the orphans
// expire through their TTL. A nil Cache or client computes every result.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(ownerID int64) string {
	return fmt.Sprintf("%s:%d:version", keyPrefix, ownerID)
}

// Version returns the tenant's cache version, initialising it when missing.
func (c *Cache) Version(ctx context.Context, ownerID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		// SetNX so a concurrent Bump is not overwritten.
		if err := c.client.SetNX(ctx, versionKey(ownerID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(ownerID)).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes a cache key for the tenant's current version.
func (c *Cache) BuildKey(ctx context.Context, ownerID int64, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:v%d:%s", keyPrefix, ownerID, ver, joined), nil
}

// FetchJSON loads a cached value into dest or computes it with loader and
// stores it.
func FetchJSON[T any](ctx context.Context, c *Cache, ownerID int64, dest *T, loader func(context.Context) (T, error), parts ...string) error {
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		*dest = value
		return nil
	}

	key, err := c.BuildKey(ctx, ownerID, parts...)
	if err != nil {
		return err
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	*dest = value
	return nil
}

// Bump invalidates every cached report of the tenant.
func (c *Cache) Bump(ctx context.Context, ownerID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(ownerID)).Err()
}

// Invalidate satisfies ledger.Invalidator.
func (c *Cache) Invalidate(ctx context.Context, ownerID int64) error {
	return c.Bump(ctx, ownerID)
}
