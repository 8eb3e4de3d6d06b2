package lock

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	a, err := NewRedisLocker(ctx, client, "")
	require.NoError(t, err)
	b, err := NewRedisLocker(ctx, client, "")
	require.NoError(t, err)

	token, ok, err := a.Lock(ctx, "staff:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:staff:1"))

	_, ok, err = b.Lock(ctx, "staff:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second process must not take a held key")

	require.NoError(t, b.Unlock(ctx, "staff:1", "someone-else"))
	assert.True(t, mr.Exists("lock:staff:1"), "non-owner unlock is a no-op")

	require.NoError(t, a.Unlock(ctx, "staff:1", token))
	assert.False(t, mr.Exists("lock:staff:1"))
}

func TestRedisLocker_ExpiredLockNotReleasedByOldOwner(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	l, err := NewRedisLocker(ctx, client, "")
	require.NoError(t, err)

	old, ok, _ := l.Lock(ctx, "room:1", time.Second)
	require.True(t, ok)
	mr.FastForward(2 * time.Second)

	// Same locker instance: the release is told apart by its token, not by the key.
	current, ok, _ := l.Lock(ctx, "room:1", time.Minute)
	require.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "room:1", old))
	assert.True(t, mr.Exists("lock:room:1"))

	require.NoError(t, l.Unlock(ctx, "room:1", current))
	assert.False(t, mr.Exists("lock:room:1"))
}

func TestNewRedisLocker_Unreachable(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	_, err := NewRedisLocker(context.Background(), client, "")
	assert.Error(t, err)
}

func TestFailoverLocker_LazyRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	logger := zerolog.New(io.Discard)
	f := NewFailoverLocker(NewLazyRedisLocker(client, "salonsched:"), NewMemoryLocker(), &logger)
	ctx := context.Background()

	release, err := Acquire(ctx, f, BookingKeys("X", "R", ""), DefaultOptions())
	require.NoError(t, err, "memory fallback takes over while redis is unreachable")

	_, ok, err := f.Lock(ctx, StaffKey("X"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	_, ok, err = f.Lock(ctx, StaffKey("X"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
