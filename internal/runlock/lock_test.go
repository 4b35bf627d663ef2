package runlock

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLockerGrantsEveryLease(t *testing.T) {
	l := NewLocker(nil)
	require.False(t, l.Enabled())

	token, ok, err := l.TryLock(context.Background(), "billing_period:2026-02", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)

	_, ok, err = l.TryLock(context.Background(), "billing_period:2026-02", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, l.Release(context.Background(), "billing_period:2026-02", token))
}

func TestTryLockValidatesArguments(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	l := NewLocker(client)
	require.True(t, l.Enabled())

	_, _, err := l.TryLock(context.Background(), "  ", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, _, err = l.TryLock(context.Background(), "job", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)

	assert.NoError(t, l.Release(context.Background(), "job", ""))
}

func TestKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "worksuite:runlock:billing_period:2026-02", Key("billing_period:2026-02"))
}
