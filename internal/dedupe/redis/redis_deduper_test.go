package redis

import (
	"context"
	"testing"
	"time"

	"swapguard/internal/config"
	"swapguard/internal/logtest"
	rdb "swapguard/internal/stores/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Test Helpers ==========

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *rdb.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &rdb.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

// ========== Constructor Tests ==========

func TestNewDeduper(t *testing.T) {
	_, client := setupTestRedis(t)

	_, err := NewDeduper(logtest.New(), nil, client, nil)
	assert.Error(t, err)
	_, err = NewDeduper(logtest.New(), &config.DedupeConfig{}, nil, nil)
	assert.Error(t, err)

	d, err := NewDeduper(logtest.New(), &config.DedupeConfig{}, client, nil)
	require.NoError(t, err)
	assert.Equal(t, "dedupe:", d.prefix)
	assert.Equal(t, 24*time.Hour, d.ttl)
}

func TestNewBloom(t *testing.T) {
	_, client := setupTestRedis(t)

	_, err := NewBloom(nil, client)
	assert.ErrorContains(t, err, "bloom config is required")
	_, err = NewBloom(&config.BloomConfig{}, nil)
	assert.ErrorContains(t, err, "redis client is required")

	b, err := NewBloom(&config.BloomConfig{ErrRate: 2}, client)
	require.NoError(t, err)
	assert.Equal(t, "dedupe:bf:notifications", b.Key)
	assert.Equal(t, int64(1_000_000), b.Capacity)
	assert.Equal(t, 0.001, b.ErrRate)
}

// ========== Seen Tests ==========

func TestDeduper_Seen(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	d, err := NewDeduper(logtest.New(), &config.DedupeConfig{Prefix: "test:dedupe:", TTL: time.Minute}, client, nil)
	require.NoError(t, err)

	seen, err := d.Seen(ctx, "1:0xabc:0")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.True(t, mr.Exists("test:dedupe:1:0xabc:0"))
	assert.Equal(t, time.Minute, mr.TTL("test:dedupe:1:0xabc:0"))

	seen, err = d.Seen(ctx, "1:0xabc:0")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Minute)
	seen, err = d.Seen(ctx, "1:0xabc:0")
	require.NoError(t, err)
	assert.False(t, seen, "expired key counts as new")
}

func TestDeduper_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	log := &logtest.Capture{}

	d, err := NewDeduper(log, &config.DedupeConfig{}, client, nil)
	require.NoError(t, err)
	mr.Close()

	_, err = d.Seen(context.Background(), "id")
	assert.Error(t, err)
	assert.NotEmpty(t, log.Errors())
}

// miniredis has no RedisBloom module: every BF.* call fails and the deduper must fall back to SETNX
func TestDeduper_BloomUnavailableFallsBack(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	bloom, err := NewBloom(&config.BloomConfig{Key: "test:bf"}, client)
	require.NoError(t, err)
	assert.Error(t, bloom.Ensure(ctx))

	log := &logtest.Capture{}
	d, err := NewDeduper(log, &config.DedupeConfig{}, client, bloom)
	require.NoError(t, err)

	seen, err := d.Seen(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Len(t, log.Warns(), 1, "failed bloom add is reported")

	seen, err = d.Seen(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestBloom_EnsureSkipsExistingKey(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("test:bf", "x"))

	bloom, err := NewBloom(&config.BloomConfig{Key: "test:bf"}, client)
	require.NoError(t, err)

	assert.NoError(t, bloom.Ensure(context.Background()))
}
