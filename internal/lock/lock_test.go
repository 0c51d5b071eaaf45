package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerialisesHolders(t *testing.T) {
	l := NewLocal()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), "po-build")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrNotAcquired)

	// other keys are independent
	other, err := l.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()
}

func TestLocalReleaseIsIdempotent(t *testing.T) {
	l := NewLocal()
	release, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestKeepAliveExtendsUntilStopped(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	stop := keepAlive(2*time.Millisecond, func(context.Context) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return true, nil
	}, func(error) { t.Error("lock reported lost") })

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, time.Millisecond)

	stop()
	stop()
	mu.Lock()
	seen := calls
	mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, seen, calls)
}

func TestKeepAliveStopsWhenLockIsLost(t *testing.T) {
	lost := make(chan error, 1)
	var calls int
	stop := keepAlive(time.Millisecond, func(context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return false, errors.New("connection reset")
		}
		return false, nil
	}, func(err error) { lost <- err })
	defer stop()

	select {
	case err := <-lost:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("lost lock was not reported")
	}
	stop()
	assert.Equal(t, 2, calls)
}

func TestRedisLockOutlivesTTL(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	key := "test-" + t.Name()
	l := NewRedis(client, 300*time.Millisecond)

	release, err := l.Lock(ctx, key)
	require.NoError(t, err)

	time.Sleep(time.Second)
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, key)
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	again, err := l.Lock(ctx, key)
	require.NoError(t, err)
	again()
}
