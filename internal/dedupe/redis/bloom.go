package redis

import (
	"context"
	"errors"
	"fmt"

	"swapguard/internal/config"
	rdb "swapguard/internal/stores/redis"
)

/*
Bloom is a probabilistic "seen/not seen" prefilter in front of SETNX (RedisBloom BF.* commands).
It cuts Redis writes when the same notification is redelivered many times:
	- "definitely not seen" -> go to SETNX;
	- "probably seen" -> report a duplicate without touching SETNX (false positives at err_rate).
*/
type Bloom struct {
	rdb      *rdb.Client
	Key      string
	Capacity int64
	ErrRate  float64
}

func NewBloom(cfg *config.BloomConfig, rdb *rdb.Client) (*Bloom, error) {
	if cfg == nil {
		return nil, errors.New("bloom config is required to the bloom")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required to the bloom")
	}

	key := cfg.Key
	if key == "" {
		key = "dedupe:bf:notifications"
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1_000_000
	}
	errRate := cfg.ErrRate
	if errRate <= 0 || errRate >= 1 {
		errRate = 0.001
	}

	return &Bloom{rdb: rdb, Key: key, Capacity: capacity, ErrRate: errRate}, nil
}

// Ensure creates the filter if missing. Repeated calls are safe
func (b *Bloom) Ensure(ctx context.Context) error {
	exists, err := b.rdb.Exists(ctx, b.Key).Result()
	if err != nil {
		return fmt.Errorf("failed to check bloom key: %w", err)
	}
	if exists > 0 {
		return nil
	}

	// unknown command 'BF.RESERVE' when the module is not loaded
	if err = b.rdb.Do(ctx, "BF.RESERVE", b.Key, b.ErrRate, b.Capacity).Err(); err != nil {
		return fmt.Errorf("BF.RESERVE failed: %w", err)
	}
	return nil
}

// Add returns true when the item was definitely new
func (b *Bloom) Add(ctx context.Context, item string) (bool, error) {
	v, err := b.rdb.Do(ctx, "BF.ADD", b.Key, item).Int()
	if err != nil {
		return false, fmt.Errorf("failed to add item to bloom: %w", err)
	}
	return v == 1, nil
}

// Exists returns true when the item was probably added before
func (b *Bloom) Exists(ctx context.Context, item string) (bool, error) {
	v, err := b.rdb.Do(ctx, "BF.EXISTS", b.Key, item).Int()
	if err != nil {
		return false, fmt.Errorf("failed to check bloom: %w", err)
	}
	return v == 1, nil
}
