package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// release deletes the key only when it still holds our token, so a holder
// whose lease expired cannot drop somebody else's lock.
var release = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker is a lease based mutex keyed by bag id.
type Locker struct {
	Redis *redis.Client
	TTL   time.Duration
	Retry time.Duration
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	ttl, retry := l.TTL, l.Retry
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	rkey := fmt.Sprintf(KeyBagLock, key)
	token := uuid.NewString()

	for {
		ok, err := l.Redis.SetNX(ctx, rkey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return func() { _ = release.Run(context.Background(), l.Redis, []string{rkey}, token).Err() }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}
