package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCoalescesOverlappingCalls(t *testing.T) {
	var (
		g       Group[int]
		calls   atomic.Int32
		release = make(chan struct{})
		started = make(chan struct{})
	)

	fn := func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	go func() {
		<-started
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := g.Do(context.Background(), "suggestions", fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestDoRunsFreshAfterCompletion(t *testing.T) {
	var g Group[string]
	var calls int

	for i := 0; i < 3; i++ {
		v, shared, err := g.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})
		require.NoError(t, err)
		assert.False(t, shared)
		assert.Equal(t, "ok", v)
	}
	assert.Equal(t, 3, calls)
}

func TestDoPropagatesError(t *testing.T) {
	var g Group[int]
	boom := errors.New("boom")

	_, _, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestDoCallerCancellationDoesNotCancelWork(t *testing.T) {
	var g Group[int]
	ctx, cancel := context.WithCancel(context.Background())
	workErr := make(chan error, 1)
	callerErr := make(chan error, 1)

	go func() {
		_, _, err := g.Do(ctx, "k", func(workCtx context.Context) (int, error) {
			cancel()
			time.Sleep(10 * time.Millisecond)
			workErr <- workCtx.Err()
			return 1, nil
		})
		callerErr <- err
	}()

	select {
	case err := <-callerErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("caller did not return")
	}

	select {
	case err := <-workErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shared work did not finish")
	}
}
