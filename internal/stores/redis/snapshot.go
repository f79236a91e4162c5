package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

const DefaultSnapshotKey = "swapguard:hook:snapshot"

var ErrNoSnapshot = errors.New("no snapshot stored")

// SnapshotStore keeps the latest encoded hook state under one key
type SnapshotStore struct {
	log logger.Logger
	rdb *Client
	key string
}

func NewSnapshotStore(log logger.Logger, rdb *Client, key string) (*SnapshotStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required to the snapshot store")
	}
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotStore{log: log, rdb: rdb, key: key}, nil
}

func (s *SnapshotStore) Key() string { return s.key }

// Save overwrites the stored snapshot; the previous one is kept under <key>:prev
func (s *SnapshotStore) Save(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return errors.New("empty snapshot")
	}

	start := time.Now()
	prev, err := s.rdb.GetSet(ctx, s.key, data).Bytes()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if len(prev) > 0 {
		if err = s.rdb.Set(ctx, s.key+":prev", prev, 0).Err(); err != nil {
			s.log.Warnf("Failed to keep previous snapshot, key=%s, error=%v", s.key, err)
		}
	}

	s.log.Debugf("Snapshot saved, key=%s bytes=%d took=%s", s.key, len(data), time.Since(start))
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, nil
}

// LoadPrevious returns the snapshot replaced by the last Save
func (s *SnapshotStore) LoadPrevious(ctx context.Context) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key+":prev").Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load previous snapshot: %w", err)
	}
	return data, nil
}
