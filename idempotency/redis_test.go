package idempotency

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, time.Hour), mr
}

func TestClaim(t *testing.T) {
	store, mr := newStore(t)
	ctx := t.Context()

	orderID, claimed, err := store.Claim(ctx, "k1", "order-a")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "order-a", orderID)

	orderID, claimed, err = store.Claim(ctx, "k1", "order-b")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-a", orderID)

	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"k1"))
}

func TestClaimAfterExpiry(t *testing.T) {
	store, mr := newStore(t)
	ctx := t.Context()

	_, _, err := store.Claim(ctx, "k1", "order-a")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	orderID, claimed, err := store.Claim(ctx, "k1", "order-b")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "order-b", orderID)
}

func TestRelease(t *testing.T) {
	store, mr := newStore(t)
	ctx := t.Context()

	_, _, err := store.Claim(ctx, "k1", "order-a")
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "k1"))
	assert.False(t, mr.Exists(keyPrefix+"k1"))

	_, claimed, err := store.Claim(ctx, "k1", "order-b")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimRedisDown(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	_, _, err := store.Claim(t.Context(), "k1", "order-a")
	assert.Error(t, err)
}
