package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iganalyzer/pkg/logger"
)

func TestPoolRunsTasks(t *testing.T) {
	pool := NewPool(3, 10, logger.NewNopLogger())
	pool.Start()
	defer pool.Stop()

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(Task{Name: "count", Run: func(ctx context.Context) {
			defer wg.Done()
			count.Add(1)
		}}))
	}
	wg.Wait()
	assert.Equal(t, int32(10), count.Load())
	assert.Equal(t, 3, pool.Workers())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, 10, logger.NewNopLogger())
	pool.Start()
	defer pool.Stop()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(Task{Name: "slow", Run: func(ctx context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
		}}))
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolQueueFull(t *testing.T) {
	pool := NewPool(1, 1, logger.NewNopLogger())
	pool.Start()
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(Task{Name: "blocker", Run: func(ctx context.Context) {
		close(started)
		<-release
	}}))
	<-started

	require.NoError(t, pool.Submit(Task{Name: "queued", Run: func(ctx context.Context) {}}))
	err := pool.Submit(Task{Name: "overflow", Run: func(ctx context.Context) {}})
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, 1, pool.ActiveWorkers())
	assert.Equal(t, 1, pool.QueueSize())
	assert.Equal(t, int64(0), pool.Completed())

	close(release)
	require.Eventually(t, func() bool { return pool.Completed() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, pool.ActiveWorkers())
	assert.Equal(t, 0, pool.QueueSize())
}

func TestPoolStopCancelsContext(t *testing.T) {
	pool := NewPool(1, 1, logger.NewNopLogger())
	pool.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, pool.Submit(Task{Name: "waits", Run: func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}}))
	<-started

	pool.Stop()
	select {
	case <-cancelled:
	default:
		t.Fatal("task context was not cancelled before Stop returned")
	}

	err := pool.Submit(Task{Name: "late", Run: func(ctx context.Context) {}})
	assert.True(t, errors.Is(err, ErrStopped))
	pool.Stop()
}

func TestPoolSurvivesPanic(t *testing.T) {
	log := logger.NewTestLogger()
	pool := NewPool(1, 2, log)
	pool.Start()
	defer pool.Stop()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(Task{Name: "boom", Run: func(ctx context.Context) { panic("boom") }}))
	require.NoError(t, pool.Submit(Task{Name: "after", Run: func(ctx context.Context) { close(done) }}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
	assert.True(t, log.HasMessage("Task panicked"))
}
