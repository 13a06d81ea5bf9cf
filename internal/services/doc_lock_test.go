package services

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

func TestDocLocks_SerialisesSameID(t *testing.T) {
	locks := newDocLocks()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("doc-1")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInside)
	assert.Zero(t, locks.size())
}

func TestDocLocks_DistinctIDsDoNotBlock(t *testing.T) {
	locks := newDocLocks()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different document blocked")
	}
	assert.Equal(t, 1, locks.size())
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()

	v, err := withTimeout(ctx, time.Second, "fast", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	_, err = withTimeout(ctx, time.Second, "failing", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = withTimeout(ctx, 10*time.Millisecond, "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
}
