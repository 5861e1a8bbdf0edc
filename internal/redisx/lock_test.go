package redisx

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLocker_MutualExclusion(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := &Locker{Redis: rdb, TTL: 5 * time.Second, Retry: time.Millisecond}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "bag-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocker_ReleaseKeepsForeignLock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := &Locker{Redis: rdb, TTL: time.Second}

	unlock, err := l.Lock(context.Background(), "bag-1")
	require.NoError(t, err)

	// lease expired and another holder took over
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:bag:bag-1", "someone-else"))

	unlock()
	v, err := mr.Get("lock:bag:bag-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestLocker_TimesOut(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := &Locker{Redis: rdb, Retry: time.Millisecond}

	unlock, err := l.Lock(context.Background(), "bag-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "bag-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
