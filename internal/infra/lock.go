package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance mutual exclusion lock on a Redis key.
type RedisLocker struct {
	cache *redis.Client
}

// NewRedisLocker builds a locker over cache.
func NewRedisLocker(cache *redis.Client) *RedisLocker {
	return &RedisLocker{cache: cache}
}

// Acquire takes the lock for ttl. It returns a release func when acquired and
// ok=false when another holder owns the key.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.cache.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(ctx, l.cache, []string{"lock:" + key}, token) // nolint:errcheck
	}
	return release, true, nil
}
