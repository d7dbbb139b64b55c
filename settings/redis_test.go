package settings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisPersister(t *testing.T) (*RedisPersister, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisPersister(client, "")
	t.Cleanup(func() { p.Close() })
	return p, mr
}

func TestRedisPersister_MissingKeyIsEmpty(t *testing.T) {
	p, _ := newRedisPersister(t)

	records, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRedisPersister_RoundTrip(t *testing.T) {
	p, mr := newRedisPersister(t)

	require.NoError(t, p.Save(context.Background(), seed()))
	assert.True(t, mr.Exists(DefaultRedisKey))

	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seed(), loaded)
}

func TestRedisPersister_Malformed(t *testing.T) {
	p, mr := newRedisPersister(t)
	require.NoError(t, mr.Set(DefaultRedisKey, "{not json"))

	_, err := p.Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestRedisPersister_ServerDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	p := NewRedisPersister(client, "custom:key")
	t.Cleanup(func() { p.Close() })

	_, err := p.Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)

	err = p.Save(context.Background(), seed())
	assert.ErrorIs(t, err, ErrPersistence)
}
