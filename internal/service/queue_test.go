package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchchat/internal/service"
)

func TestQueueSerializesPerKey(t *testing.T) {
	q := service.NewConversationQueue()
	var (
		mu      sync.Mutex
		running int
		maxSeen int
		order   []int
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := q.Do(context.Background(), "c1", func(context.Context) error {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				order = append(order, i)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	q.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Len(t, order, 20)
}

func TestQueueKeysRunIndependently(t *testing.T) {
	q := service.NewConversationQueue()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = q.Do(context.Background(), "slow", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var ran atomic.Bool
	require.NoError(t, q.Do(context.Background(), "fast", func(context.Context) error {
		ran.Store(true)
		return nil
	}))
	assert.True(t, ran.Load())
	close(release)
	q.Wait()
}

func TestQueueReturnsJobError(t *testing.T) {
	q := service.NewConversationQueue()
	boom := errors.New("boom")
	assert.ErrorIs(t, q.Do(context.Background(), "c1", func(context.Context) error { return boom }), boom)
}

func TestQueueSkipsCancelledJobs(t *testing.T) {
	q := service.NewConversationQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	err := q.Do(ctx, "c1", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	q.Wait()
	assert.False(t, ran.Load())
}
