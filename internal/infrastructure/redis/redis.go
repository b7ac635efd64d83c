package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb}
}

// AllowRequest: Simple Fixed Window Rate Limit
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}

// AcquireIdentityLock takes a short lock scoped to one external identity,
// held across the get-or-create-then-persist sequence during login. Fails
// open on Redis errors so a cache outage cannot block logins; the session
// row's uniqueness constraint still decides the winner in that case.
func (c *Cache) AcquireIdentityLock(ctx context.Context, externalID string, ttl time.Duration) (bool, error) {
	ok, err := c.Client.SetNX(ctx, "lock:identity:"+externalID, 1, ttl).Result()
	if err != nil {
		return true, nil // fail open
	}
	return ok, nil
}

func (c *Cache) ReleaseIdentityLock(ctx context.Context, externalID string) error {
	return c.Client.Del(ctx, "lock:identity:"+externalID).Err()
}
