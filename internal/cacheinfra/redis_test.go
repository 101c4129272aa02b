package cacheinfra

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-tenant-cache/pkg/testsupport"
)

func TestNewRedisClient(t *testing.T) {
	srv, _ := testsupport.NewRedis(t)

	client := NewRedisClient(*DefaultRemoteConfig(srv.Addr()))
	defer client.Close()

	require.NoError(t, NewRedisStore(client, "cache:").Ping(context.Background()))
}

func TestRedisStore_SetGet(t *testing.T) {
	ctx := context.Background()
	srv, client := testsupport.NewRedis(t)
	store := NewRedisStore(client, "cache:")

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Second))
	assert.True(t, srv.Exists("cache:k"), "keys are written under the store prefix")

	value, ttl, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
	assert.Equal(t, 10*time.Second, ttl)

	require.NoError(t, store.Set(ctx, "forever", []byte("v"), 0))
	_, ttl, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Zero(t, ttl, "persistent keys report no expiry")
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, client := testsupport.NewRedis(t)
	store := NewRedisStore(client, "cache:")

	_, _, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRemoteNotFound)
}

func TestRedisStore_DeleteExists(t *testing.T) {
	ctx := context.Background()
	_, client := testsupport.NewRedis(t)
	store := NewRedisStore(client, "cache:")

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))

	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err := store.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err = store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Keys(t *testing.T) {
	ctx := context.Background()
	srv, client := testsupport.NewRedis(t)
	store := NewRedisStore(client, "cache:")

	for _, k := range []string{"tenant:a:1", "tenant:a:2", "tenant:b:1"} {
		require.NoError(t, store.Set(ctx, k, []byte("v"), 0))
	}
	require.NoError(t, srv.Set("other:tenant:a:3", "v"))

	keys, err := store.Keys(ctx, "tenant:a:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"tenant:a:1", "tenant:a:2"}, keys)
}

func TestRedisStore_Unavailable(t *testing.T) {
	srv, client := testsupport.NewRedis(t)
	store := NewRedisStore(client, "cache:")
	srv.Close()

	_, _, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRemoteNotFound)
}
