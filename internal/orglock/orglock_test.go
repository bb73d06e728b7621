package orglock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameOrg(t *testing.T) {
	l := NewLocal()
	orgID := uuid.New()

	var inside int32
	var maxInside int32
	errs := make(chan error, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), orgID, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), maxInside)
	require.Empty(t, l.locks)
}

func TestLocal_DifferentOrgsDoNotBlock(t *testing.T) {
	l := NewLocal()
	a, b := uuid.New(), uuid.New()

	err := l.WithLock(context.Background(), a, func(ctx context.Context) error {
		return l.WithLock(ctx, b, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestLocal_ContextCancelledWhileWaiting(t *testing.T) {
	l := NewLocal()
	orgID := uuid.New()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), orgID, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, orgID, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestNewRedis_Validates(t *testing.T) {
	_, err := NewRedis(nil, time.Second, time.Second)
	require.Error(t, err)
}
