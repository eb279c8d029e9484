package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/internal/testutil"
)

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, ok)

	other, ok, err := locker.TryLock(ctx, "user_2")
	require.NoError(t, err)
	assert.True(t, ok)
	other()

	release()
	again, ok, err := locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, time.Minute, testutil.NewTestLogger())
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(lockKeyPrefix+"user_1"))
	assert.Equal(t, time.Minute, mr.TTL(lockKeyPrefix+"user_1"))

	_, ok, err = locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(lockKeyPrefix+"user_1"))
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, time.Second, testutil.NewTestLogger())
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	require.True(t, ok)

	// the lock expired and another replica took it
	mr.FastForward(2 * time.Second)
	foreign, ok, err := locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	require.True(t, ok)
	defer foreign()

	release()
	assert.True(t, mr.Exists(lockKeyPrefix+"user_1"))
}

func TestRedisLocker_RenewsWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ttl := 300 * time.Millisecond
	locker := NewRedisLocker(client, ttl, testutil.NewTestLogger())
	ctx := context.Background()
	key := lockKeyPrefix + "user_1"

	release, ok, err := locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	require.True(t, ok)

	// most of the ttl is gone, the holder must push it back out
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) > 100*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	mr.FastForward(250 * time.Millisecond)
	require.True(t, mr.Exists(key))
	_, ok, err = locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(key))

	again, ok, err := locker.TryLock(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestNewLocker_FallsBackToLocal(t *testing.T) {
	locker, client := NewLocker(&config.RedisConfig{}, testutil.NewTestLogger())
	assert.Nil(t, client)
	_, ok := locker.(*localLocker)
	assert.True(t, ok)
}
