package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, ttl), mr
}

func TestStoreDefaultTTL(t *testing.T) {
	store, _ := newTestStore(t, 0)
	assert.Equal(t, DefaultTTL, store.TTL())

	store, _ = newTestStore(t, time.Minute)
	assert.Equal(t, time.Minute, store.TTL())
}

func TestStoreSetGet(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "actor-1", []byte(`["viewSchedule"]`), 0))
	payload, ok, err := store.Get(ctx, "actor-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["viewSchedule"]`, string(payload))
}

func TestStoreSetOverwritesPriorValue(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "actor-1", []byte("old"), 0))
	require.NoError(t, store.Set(ctx, "actor-1", []byte("new"), 0))

	payload, ok, err := store.Get(ctx, "actor-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", string(payload))
}

func TestStoreJSONRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, "role-Employee", []string{"viewSchedule", "seeBadges"}, 0))

	var got []string
	ok, err := store.GetJSON(ctx, "role-Employee", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"viewSchedule", "seeBadges"}, got)

	ok, err = store.GetJSON(ctx, "role-Ghost", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreHasAndInvalidate(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "actor-1", []byte("x"), 0))
	has, err := store.Has(ctx, "actor-1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, store.Invalidate(ctx, "actor-1"))
	has, err = store.Has(ctx, "actor-1")
	require.NoError(t, err)
	assert.False(t, has)

	// Missing keys are not an error.
	require.NoError(t, store.Invalidate(ctx, "actor-1"))
}

func TestStoreInvalidatePrefix(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "actor-1", []byte("x"), 0))
	require.NoError(t, store.Set(ctx, "actor-2", []byte("y"), 0))
	require.NoError(t, store.Set(ctx, "role-Employee", []byte("z"), 0))

	require.NoError(t, store.InvalidatePrefix(ctx, "actor-"))

	for _, key := range []string{"actor-1", "actor-2"} {
		has, err := store.Has(ctx, key)
		require.NoError(t, err)
		assert.False(t, has, "expected %s gone", key)
	}
	has, err := store.Has(ctx, "role-Employee")
	require.NoError(t, err)
	assert.True(t, has, "unrelated keys must survive")
}

func TestStoreEntriesExpire(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "actor-1", []byte("x"), 0))
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Get(ctx, "actor-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire after the TTL")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "actor-42", ActorKey(42))
	assert.Equal(t, "role-Employee", RoleKey("Employee"))
	assert.Equal(t, "all-actors", AllActorsKey)
}
