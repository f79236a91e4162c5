package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swapguard/internal/config"
	"swapguard/internal/dedupe"
	rdb "swapguard/internal/stores/redis"

	"gitlab.com/nevasik7/alerting/logger"
)

var _ dedupe.Deduper = (*Deduper)(nil)

// Deduper is the cluster deduper: Redis SETNX + TTL, optionally fronted by a bloom filter
type Deduper struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
	bloom  *Bloom // optional
}

// prefix example "swapguard:dedupe:"
func NewDeduper(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client, bloom *Bloom) (*Deduper, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the redis deduper")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dedupe:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = dedupe.DefaultTTL
	}

	return &Deduper{
		log:    log,
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
		bloom:  bloom,
	}, nil
}

func (d *Deduper) Seen(ctx context.Context, id string) (bool, error) {
	// bloom "probably seen" short-circuits SETNX; any bloom error falls through to Redis
	if d.bloom != nil {
		if exists, err := d.bloom.Exists(ctx, id); err == nil && exists {
			return true, nil
		}
	}

	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		d.log.Errorf("Redis SetNX failed, id=%s, error=%v", id, err)
		return false, fmt.Errorf("redis SetNX: %w", err)
	}

	seen := !ok // ok=true -> new id
	if !seen && d.bloom != nil {
		if _, err = d.bloom.Add(ctx, id); err != nil {
			d.log.Warnf("Failed to add id to bloom, id=%s, error=%v", id, err)
		}
	}
	return seen, nil
}
