package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "ledger:coa:version"

// CachedResolver is a Redis read-through cache in front of another Resolver.
// Misses and lookup errors are never cached.
type CachedResolver struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
}

// NewCachedResolver wraps next. A nil client disables caching.
func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration) *CachedResolver {
	return &CachedResolver{next: next, client: client, ttl: ttl}
}

func (c *CachedResolver) version(ctx context.Context) (string, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "1", nil
	}
	return ver, err
}

func (c *CachedResolver) key(ctx context.Context, code string) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{"ledger", "coa", ver, strings.TrimSpace(code)}, ":"), nil
}

// Resolve serves from Redis when possible. Redis failures fall through to next.
func (c *CachedResolver) Resolve(ctx context.Context, code string) (Account, error) {
	if c == nil {
		return Account{}, errors.New("accounts: nil cached resolver")
	}
	if c.client == nil {
		return c.next.Resolve(ctx, code)
	}
	key, err := c.key(ctx, code)
	if err != nil {
		return c.next.Resolve(ctx, code)
	}
	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var acc Account
		if err := json.Unmarshal(payload, &acc); err == nil {
			return acc, nil
		}
	}
	acc, err := c.next.Resolve(ctx, code)
	if err != nil {
		return Account{}, err
	}
	if raw, err := json.Marshal(acc); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return acc, nil
}

// Bump invalidates every cached account by moving to a new key version.
func (c *CachedResolver) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
		return err
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

var _ Resolver = (*CachedResolver)(nil)
