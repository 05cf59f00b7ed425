package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igarchive/pkg/logger"
)

func TestPoolRunsEveryJob(t *testing.T) {
	pool := NewPool(3, logger.NewNopLogger())
	usernames := []string{"a", "b", "c", "d", "e"}

	var mu sync.Mutex
	seen := make(map[string]bool)

	results := pool.Run(context.Background(), usernames, func(ctx context.Context, username string) error {
		mu.Lock()
		seen[username] = true
		mu.Unlock()
		return nil
	})

	require.Len(t, results, 5)
	for _, username := range usernames {
		assert.True(t, seen[username])
		assert.NoError(t, results[username])
	}
}

func TestPoolCollectsErrors(t *testing.T) {
	pool := NewPool(2, logger.NewNopLogger())
	wantErr := errors.New("profile gone")

	results := pool.Run(context.Background(), []string{"ok", "bad"}, func(ctx context.Context, username string) error {
		if username == "bad" {
			return wantErr
		}
		return nil
	})

	assert.NoError(t, results["ok"])
	assert.ErrorIs(t, results["bad"], wantErr)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, logger.NewNopLogger())

	var active, peak int32
	results := pool.Run(context.Background(), []string{"a", "b", "c", "d", "e", "f"},
		func(ctx context.Context, username string) error {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			atomic.AddInt32(&active, -1)
			return nil
		})

	assert.Len(t, results, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolCancelledContext(t *testing.T) {
	pool := NewPool(1, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.Run(ctx, []string{"a", "b"}, func(ctx context.Context, username string) error {
		return nil
	})

	// every job gets a result either way
	assert.Len(t, results, 2)
}

func TestPoolMinimumOneWorker(t *testing.T) {
	pool := NewPool(0, logger.NewNopLogger())
	results := pool.Run(context.Background(), []string{"a"}, func(ctx context.Context, username string) error {
		return nil
	})
	assert.NoError(t, results["a"])
}
