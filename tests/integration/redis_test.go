//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *TestRedis {
	t.Helper()
	ctx := context.Background()
	r, err := SetupTestRedis(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Teardown(ctx) })
	return r
}

func TestRedisIPLockoutStore(t *testing.T) {
	r := setupRedis(t)
	ctx := context.Background()
	store := repositories.NewRedisIPLockoutStore(r.Client, "authgate-test")

	ip := TestIP()
	got, err := store.Get(ctx, ip)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := time.Now().Add(10 * time.Minute).Truncate(time.Millisecond)
	require.NoError(t, store.SetIfAbsent(ctx, ip, first))
	require.NoError(t, store.SetIfAbsent(ctx, ip, first.Add(time.Minute)))

	got, err = store.Get(ctx, ip)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(first), "the first trip wins")

	ttl, err := r.Client.PTTL(ctx, "authgate-test:iplock:"+ip).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 9*time.Minute)

	// past deadlines are never stored
	other := TestIP()
	require.NoError(t, store.SetIfAbsent(ctx, other, time.Now().Add(-time.Second)))
	got, err = store.Get(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisPolicySource(t *testing.T) {
	r := setupRedis(t)
	ctx := context.Background()
	source := repositories.NewRedisPolicySource(r.Client, "authgate-test")

	_, found, err := source.Lookup(ctx, "global", "security.login.ip.maxFails")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, source.Set(ctx, "global", "security.login.ip.maxFails", "20"))

	value, found, err := source.Lookup(ctx, "global", "security.login.ip.maxFails")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "20", value)
}
