package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisClient(t *testing.T, namespace string) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        RedisDBSessions,
		Namespace: namespace,
		Logger:    &NoOpLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestGetRedisDBName(t *testing.T) {
	tests := []struct {
		name     string
		db       int
		expected string
	}{
		{"Sessions", RedisDBSessions, "Sessions"},
		{"Cache", RedisDBCache, "Cache"},
		{"DB0", 0, "DB 0"},
		{"DB16", 16, "DB 16"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetRedisDBName(tt.db))
		})
	}
}

func TestNewRedisClient_Validation(t *testing.T) {
	_, err := NewRedisClient(RedisClientOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewRedisClient(RedisClientOptions{RedisURL: "not a url://"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	// Nothing listens on this port
	_, err = NewRedisClient(RedisClientOptions{
		RedisURL:    "redis://127.0.0.1:1",
		PingTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestRedisClient_Namespacing(t *testing.T) {
	client, mr := newMiniRedisClient(t, "cartshare:session")
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "sample", "1", 0))
	assert.True(t, mr.Exists("cartshare:session:sample"))
	assert.Equal(t, RedisDBSessions, client.GetDB())
	assert.Equal(t, "cartshare:session", client.GetNamespace())

	v, err := client.Get(ctx, "sample")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, client.Del(ctx, "sample"))
	_, err = client.Get(ctx, "sample")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisClient_HashWithTTL(t *testing.T) {
	client, mr := newMiniRedisClient(t, "ns")
	ctx := context.Background()

	err := client.HSetWithTTL(ctx, "default", map[string]interface{}{
		"sessionId": "abc",
		"user":      `{"id":"1"}`,
	}, time.Hour)
	require.NoError(t, err)

	fields, err := client.HGetAll(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "abc", fields["sessionId"])
	assert.Equal(t, time.Hour, mr.TTL("ns:default"))

	require.NoError(t, client.HDel(ctx, "default", "user"))
	fields, err = client.HGetAll(ctx, "default")
	require.NoError(t, err)
	assert.NotContains(t, fields, "user")

	mr.FastForward(2 * time.Hour)
	fields, err = client.HGetAll(ctx, "default")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestRedisClient_HealthCheck(t *testing.T) {
	client, mr := newMiniRedisClient(t, "")
	ctx := context.Background()

	assert.NoError(t, client.HealthCheck(ctx))
	mr.Close()
	assert.Error(t, client.HealthCheck(ctx))
}
