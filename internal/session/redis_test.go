package session_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/session"
)

func TestRedisStore(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store := session.NewRedisStore(client, "test")
	defer func() { _ = store.Close() }()

	testStoreContract(t, store)

	assert.True(t, server.Exists("test:session:s-round"))
}

func TestRedisStoreCorruptValue(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	require.NoError(t, server.Set("test:session:bad", "{not json"))

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store := session.NewRedisStore(client, "test")
	defer func() { _ = store.Close() }()

	_, _, err = store.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, session.ErrDecodeState)
}

func TestDialRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	ctx := context.Background()
	client, err := session.DialRedis(ctx, server.Addr(), "", 0)
	require.NoError(t, err)

	store := session.NewRedisStore(client, "dial")
	require.NoError(t, store.Set(ctx, "s-1", newState("s-1")))
	assert.True(t, server.Exists("dial:session:s-1"))
	assert.NoError(t, store.Close())

	addr := server.Addr()
	server.Close()
	_, err = session.DialRedis(ctx, addr, "", 0)
	assert.ErrorIs(t, err, session.ErrConnectStore)
}
