package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLock(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	release, err := l.Acquire(ctx, "private-photos/a.jpg")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "private-photos/a.jpg")
	assert.ErrorIs(t, err, ErrHeld)

	other, err := l.Acquire(ctx, "private-photos/b.jpg")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	again, err := l.Acquire(ctx, "private-photos/a.jpg")
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, time.Minute, "")
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	_, err = NewRedisLock(client, 0, "")
	assert.Error(t, err)

	l, err := NewRedisLock(client, time.Minute, "")
	require.NoError(t, err)
	assert.Equal(t, "derivatives:lock", l.keyPrefix)
}
