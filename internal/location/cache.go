package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-rescue-bags/internal/geo"
	"github.com/ariefcatur/go-rescue-bags/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Cache keeps the last known coordinates per device. Entries may be evicted
// at any time; callers treat a miss as "location unknown".
type Cache struct {
	Redis *redis.Client
}

func (c *Cache) Save(ctx context.Context, key string, at geo.Coordinates) error {
	b, err := json.Marshal(at)
	if err != nil {
		return err
	}
	return c.Redis.Set(ctx, fmt.Sprintf(redisx.KeyDeviceLocation, key), b, redisx.TTLDeviceLocation).Err()
}

// Load returns nil, nil when nothing is cached.
func (c *Cache) Load(ctx context.Context, key string) (*geo.Coordinates, error) {
	b, err := c.Redis.Get(ctx, fmt.Sprintf(redisx.KeyDeviceLocation, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var at geo.Coordinates
	if err := json.Unmarshal(b, &at); err != nil || !at.Valid() {
		// unreadable entry counts as a miss
		return nil, nil
	}
	return &at, nil
}

func (c *Cache) Clear(ctx context.Context, key string) error {
	return c.Redis.Del(ctx, fmt.Sprintf(redisx.KeyDeviceLocation, key)).Err()
}
