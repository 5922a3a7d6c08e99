package runner

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cuke/types"
)

func TestPoolResolvesEveryUnit(t *testing.T) {
	pool := NewPool(context.Background(), testLogger(), 3)
	defer pool.Shutdown(true)

	var handles []*Handle
	for i := 0; i < 10; i++ {
		h, err := pool.Submit(codeUnit(i % 2))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for i, h := range handles {
		waitClosed(t, h.Done())
		assert.Equal(t, HandleResolved, h.State())
		code, err := h.Result()
		require.NoError(t, err)
		assert.Equal(t, types.ResultCode(i%2), code)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const workers = 2
	pool := NewPool(context.Background(), testLogger(), workers)

	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		_, err := pool.Submit(funcUnit(types.ApiFeatureParallel, func(context.Context, io.Writer) (int, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return 0, nil
		}))
		require.NoError(t, err)
	}
	pool.Shutdown(true)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Equal(t, workers, pool.Size())
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), testLogger(), 1)
	pool.Shutdown(true)
	assert.True(t, pool.Closed())

	_, err := pool.Submit(codeUnit(0))
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolSubmitNil(t *testing.T) {
	pool := NewPool(context.Background(), testLogger(), 1)
	defer pool.Shutdown(true)
	_, err := pool.Submit(nil)
	require.Error(t, err)
}

func TestPoolGracefulShutdownWaits(t *testing.T) {
	pool := NewPool(context.Background(), testLogger(), 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	first, err := pool.Submit(blockingUnit(started, release))
	require.NoError(t, err)
	second, err := pool.Submit(codeUnit(0))
	require.NoError(t, err)
	<-started

	done := make(chan struct{})
	go func() {
		pool.Shutdown(true)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("graceful shutdown returned before units finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	waitClosed(t, done)
	assert.Equal(t, HandleResolved, first.State())
	assert.Equal(t, HandleResolved, second.State())
}

func TestPoolForcedShutdownCancels(t *testing.T) {
	pool := NewPool(context.Background(), testLogger(), 1)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{}, 1)

	running, err := pool.Submit(blockingUnit(started, release))
	require.NoError(t, err)
	queued, err := pool.Submit(codeUnit(0))
	require.NoError(t, err)
	<-started

	pool.Shutdown(false)

	waitClosed(t, running.Done())
	waitClosed(t, queued.Done())
	assert.Equal(t, HandleCancelled, running.State())
	assert.Equal(t, HandleCancelled, queued.State())
	_, err = running.Result()
	require.ErrorIs(t, err, ErrHandleCancelled)

	// a later graceful shutdown is a no-op
	pool.Shutdown(true)
}

func TestHandleSettlesOnce(t *testing.T) {
	h := newHandle(codeUnit(0))
	_, err := h.Result()
	require.Error(t, err)
	assert.Zero(t, h.Duration())

	assert.True(t, h.resolve(types.ResultSuccess))
	assert.False(t, h.cancelHandle())
	assert.False(t, h.resolve(types.ResultFailure))

	code, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, types.ResultSuccess, code)
	assert.Equal(t, "resolved", h.State().String())
}

func TestPoolConcurrentSubmit(t *testing.T) {
	pool := NewPool(context.Background(), testLogger(), 4)

	var wg sync.WaitGroup
	handles := make(chan *Handle, 40)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				h, err := pool.Submit(codeUnit(0))
				if err == nil {
					handles <- h
				}
			}
		}()
	}
	wg.Wait()
	pool.Shutdown(true)
	close(handles)

	n := 0
	for h := range handles {
		assert.Equal(t, HandleResolved, h.State())
		n++
	}
	assert.Equal(t, 40, n)
}
