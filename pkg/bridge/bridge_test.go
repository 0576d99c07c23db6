package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikmy/mongoflow/pkg/errors"
)

func TestRunOn_ReturnsValue(t *testing.T) {
	p := NewPool(2, 4)
	defer p.Stop()

	got, err := RunOn(context.Background(), p, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRunOn_PropagatesError(t *testing.T) {
	p := NewPool(2, 4)
	defer p.Stop()

	boom := errors.Error("boom")
	_, err := RunOn(context.Background(), p, func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestRunOn_RecoversPanic(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Stop()

	_, err := RunOn(context.Background(), p, func(context.Context) (int, error) {
		panic("kaboom")
	})
	require.ErrorIs(t, err, ErrPanicked)
	assert.Contains(t, err.Error(), "kaboom")

	// the executor survives a panic and keeps serving work
	got, err := RunOn(context.Background(), p, func(context.Context) (string, error) {
		return "alive", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alive", got)
}

func TestRunOn_StoppedPool(t *testing.T) {
	p := NewPool(1, 1)
	p.Stop()

	_, err := RunOn(context.Background(), p, func(context.Context) (int, error) {
		return 0, nil
	})
	require.ErrorIs(t, err, ErrStopped)
}

func TestPool_StopRunsQueuedWork(t *testing.T) {
	p := NewPool(1, 4)

	started := make(chan struct{})
	release := make(chan struct{})

	// occupy the only worker
	go func() {
		_, _ = RunOn(context.Background(), p, func(context.Context) (struct{}, error) {
			close(started)
			<-release
			return struct{}{}, nil
		})
	}()
	<-started

	// queue a second job behind it
	var ran atomic.Bool
	queued := make(chan error, 1)
	go func() {
		_, err := RunOn(context.Background(), p, func(context.Context) (struct{}, error) {
			ran.Store(true)
			return struct{}{}, nil
		})
		queued <- err
	}()
	assert.Eventually(t, func() bool { return len(p.jobs) == 1 }, time.Second, time.Millisecond)

	go p.Stop()
	close(release)

	// an accepted job must not be dropped: its submitter either gets
	// the result or a rejection, never an endless wait
	select {
	case err := <-queued:
		if err != nil {
			assert.ErrorIs(t, err, ErrStopped)
		} else {
			assert.True(t, ran.Load())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued submitter is still waiting after Stop")
	}
}

func TestRunOn_ContextDoneWhileWaiting(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Stop()

	release := make(chan struct{})
	var finished atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := RunOn(ctx, p, func(context.Context) (int, error) {
			<-release
			finished.Store(true)
			return 0, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	cancel()
	<-done

	// dispatched work is not cancelled, it runs to completion
	assert.False(t, finished.Load())
	close(release)

	assert.Eventually(t, finished.Load, time.Second, time.Millisecond)
}

func TestRunOn_ManyConcurrentCalls(t *testing.T) {
	p := NewPool(4, 8)
	defer p.Stop()

	var sum atomic.Int64

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := RunOn(context.Background(), p, func(context.Context) (int, error) {
				return i, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, i, got)
			sum.Add(int64(got))
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 5050, sum.Load())
}

func TestRun_SharedExecutor(t *testing.T) {
	got, err := Run(context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
