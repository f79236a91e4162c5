package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Outbound signal kinds; informational only, never read back by the hook
type EventKind string

const (
	EventPriceRecorded        EventKind = "price_recorded"
	EventSlippageCalculated   EventKind = "slippage_calculated"
	EventSwapQueued           EventKind = "swap_queued"
	EventBatchInitialized     EventKind = "batch_initialized"
	EventBatchExecuted        EventKind = "batch_executed"
	EventSwapFailed           EventKind = "swap_failed"
	EventSwapCommitted        EventKind = "swap_committed"
	EventSwapRevealed         EventKind = "swap_revealed"
	EventInvalidReveal        EventKind = "invalid_reveal"
	EventCommitPhaseStarted   EventKind = "commit_phase_started"
	EventRevealPhaseStarted   EventKind = "reveal_phase_started"
	EventExecutorAuthorized   EventKind = "executor_authorized"
	EventOwnershipTransferred EventKind = "ownership_transferred"
)

// Event is a flat record; fields a kind does not use stay zero
type Event struct {
	Kind       EventKind      `json:"kind"`
	PoolID     PoolID         `json:"pool_id"`
	Account    common.Address `json:"account"`
	Hash       common.Hash    `json:"hash"`
	Price      *uint256.Int   `json:"price,omitempty"`
	Amount     *big.Int       `json:"amount,omitempty"`
	Volatility uint64         `json:"volatility,omitempty"`
	Slippage   uint64         `json:"slippage,omitempty"`
	Index      uint64         `json:"index,omitempty"`
	Executed   uint64         `json:"executed,omitempty"`
	Failed     uint64         `json:"failed,omitempty"`
	Authorized bool           `json:"authorized,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Timestamp  uint64         `json:"timestamp"`
}

// Notification kinds delivered by the host
type NotificationKind string

const (
	NotificationInitialized NotificationKind = "initialized"
	NotificationSwapped     NotificationKind = "swapped"
)

// Inbound host notification, JSON on the wire
type Notification struct {
	EventID      string           `json:"event_id"` // chain:tx_hash:log_index
	Kind         NotificationKind `json:"kind"`
	PoolKey      PoolKey          `json:"pool_key"`
	SqrtPriceX96 *uint256.Int     `json:"sqrt_price_x96"`
	Timestamp    uint64           `json:"timestamp,omitempty"` // 0 = receive time
}
