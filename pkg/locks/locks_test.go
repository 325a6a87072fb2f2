package locks_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/locks"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, locker locks.Locker) {
	t.Helper()

	var (
		wg      sync.WaitGroup
		holders int32
		maxSeen int32
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := locker.Lock(context.Background(), "exec-1")
			if !assert.NoError(t, err) {
				return
			}

			current := atomic.AddInt32(&holders, 1)
			if current > atomic.LoadInt32(&maxSeen) {
				atomic.StoreInt32(&maxSeen, current)
			}

			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&holders, -1)

			assert.NoError(t, unlock(context.Background()))
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	t.Parallel()

	exerciseMutualExclusion(t, locks.NewMemoryLocker())
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	t.Parallel()

	locker := locks.NewMemoryLocker()

	unlock, err := locker.Lock(context.Background(), "doc-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "doc-1")
	require.ErrorIs(t, err, locks.ErrNotAcquired)

	other, err := locker.Lock(context.Background(), "doc-2")
	require.NoError(t, err)
	require.NoError(t, other(context.Background()))

	require.NoError(t, unlock(context.Background()))
	require.NoError(t, unlock(context.Background()))

	again, err := locker.Lock(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}

func newRedisLocker(t *testing.T) (*locks.RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)

	locker, err := locks.NewRedisLocker(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)

	t.Cleanup(func() { _ = locker.Close() })

	return locker, srv
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	locker, _ := newRedisLocker(t)

	exerciseMutualExclusion(t, locker)
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	locker, srv := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "exec-2")
	require.NoError(t, err)
	assert.True(t, srv.Exists("composer:lock:exec-2"))

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(waitCtx, "exec-2")
	require.ErrorIs(t, err, locks.ErrNotAcquired)

	require.NoError(t, srv.Set("composer:lock:exec-2", "someone-else"))
	require.NoError(t, unlock(ctx))
	assert.True(t, srv.Exists("composer:lock:exec-2"))

	srv.Del("composer:lock:exec-2")

	next, err := locker.Lock(ctx, "exec-2")
	require.NoError(t, err)
	require.NoError(t, next(ctx))
	assert.False(t, srv.Exists("composer:lock:exec-2"))
}

func TestRedisLocker_ExpiresAbandonedLock(t *testing.T) {
	locker, srv := newRedisLocker(t)
	locker.WithTTL(time.Second)
	ctx := context.Background()

	_, err := locker.Lock(ctx, "exec-3")
	require.NoError(t, err)

	srv.FastForward(2 * time.Second)

	unlock, err := locker.Lock(ctx, "exec-3")
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestNewRedisLocker_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := locks.NewRedisLocker(context.Background(), "not-a-url")
	assert.Error(t, err)
}
