package hook

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"swapguard/internal/access"
	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

const snapshotVersion = 1

// Snapshot is the serialized hook state kept in Redis for a warm start after restart
type Snapshot struct {
	Version int
	TakenAt time.Time
	Roles   access.Roles
	Pools   []PoolState
}

// Snapshot gob-encodes the whole hook state
func (h *Hook) Snapshot() ([]byte, error) {
	snap := Snapshot{
		Version: snapshotVersion,
		TakenAt: time.Now().UTC(),
		Roles:   h.state.Roles,
		Pools:   make([]PoolState, 0, len(h.state.Pools)),
	}
	for _, id := range h.Pools() {
		snap.Pools = append(snap.Pools, *h.state.Pools[id])
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the hook state with a snapshot; the current state is kept on any error
func (h *Hook) Restore(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty snapshot data")
	}
	if h.guard.Entered() {
		return access.ErrReentrantCall
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", snap.Version)
	}

	pools := make(map[domain.PoolID]*PoolState, len(snap.Pools))
	for i := range snap.Pools {
		p := snap.Pools[i]
		if p.ID != p.Key.ID() {
			return fmt.Errorf("snapshot pool %s does not match its key", p.ID.Hex())
		}
		pools[p.ID] = &p
	}

	roles := snap.Roles
	if roles.Executors == nil {
		roles.Executors = make(map[common.Address]bool)
	}

	h.state = State{Roles: roles, Pools: pools}
	h.log.Infof("Hook state restored, pools=%d taken_at=%s", len(pools), snap.TakenAt.Format(time.RFC3339))
	return nil
}
