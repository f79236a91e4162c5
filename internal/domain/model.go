package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Basis-point base shared by returns, volatility and slippage figures
const BasisPoints = 10_000

type PoolID = common.Hash

// Canon pool identity; ID() hashes it the way the pool engine does
type PoolKey struct {
	Currency0   common.Address `json:"currency0"`
	Currency1   common.Address `json:"currency1"`
	Fee         uint32         `json:"fee"`          // uint24
	TickSpacing int32          `json:"tick_spacing"` // int24
	Hooks       common.Address `json:"hooks"`
}

// AmountSpecified: negative = exact input, positive = exact output
type SwapParams struct {
	ZeroForOne        bool         `json:"zero_for_one"`
	AmountSpecified   *big.Int     `json:"amount_specified"`
	SqrtPriceLimitX96 *uint256.Int `json:"sqrt_price_limit_x96"`
}

// Deltas are seen from the swapper: negative = paid to the pool, positive = received
type BalanceDelta struct {
	Amount0 *big.Int `json:"amount0"`
	Amount1 *big.Int `json:"amount1"`
}

// Output returns the amount the swapper received for a swap in the given direction
func (d BalanceDelta) Output(zeroForOne bool) *big.Int {
	out := d.Amount0
	if zeroForOne {
		out = d.Amount1
	}
	if out == nil {
		return new(big.Int)
	}
	return out
}

type PriceSample struct {
	Price     *uint256.Int `json:"price"` // sqrt-price Q64.96
	Timestamp uint64       `json:"timestamp"`
}

type VolatilityState struct {
	Volatility  uint64 `json:"volatility"` // bp-scaled
	LastUpdate  uint64 `json:"last_update"`
	SampleCount uint64 `json:"sample_count"`
}

type QueuedSwap struct {
	User           common.Address `json:"user"`
	Params         SwapParams     `json:"params"`
	QueueTime      uint64         `json:"queue_time"`
	MinAmountOut   *big.Int       `json:"min_amount_out"`  // 0 = unset
	MaxPriceLimit  *uint256.Int   `json:"max_price_limit"` // 0 = unset
	MinPriceLimit  *uint256.Int   `json:"min_price_limit"` // 0 = unset
	Executed       bool           `json:"executed"`
	AuxData        []byte         `json:"aux_data,omitempty"`
	CommitmentHash common.Hash    `json:"commitment_hash"` // zero when queued directly
}

type BatchState struct {
	BatchStartTime    uint64       `json:"batch_start_time"`
	ReferencePrice    *uint256.Int `json:"reference_price"`
	BatchActive       bool         `json:"batch_active"`
	BatchCount        uint64       `json:"batch_count"`
	TotalExecuted     uint64       `json:"total_executed"`
	CommitPhaseStart  uint64       `json:"commit_phase_start"`
	RevealPhaseStart  uint64       `json:"reveal_phase_start"`
	CommitPhaseActive bool         `json:"commit_phase_active"`
	RevealPhaseActive bool         `json:"reveal_phase_active"`
}

type Commitment struct {
	Hash      common.Hash    `json:"hash"`
	Committer common.Address `json:"committer"`
	Timestamp uint64         `json:"timestamp"`
	Revealed  bool           `json:"revealed"`
	Executed  bool           `json:"executed"`
}

// Full preimage of a commitment; Deadline is carried but not part of the hash
type RevealedSwap struct {
	Committer    common.Address `json:"committer"`
	Params       SwapParams     `json:"params"`
	MinAmountOut *big.Int       `json:"min_amount_out"`
	MaxPrice     *uint256.Int   `json:"max_price"`
	MinPrice     *uint256.Int   `json:"min_price"`
	AuxData      []byte         `json:"aux_data,omitempty"`
	Deadline     uint64         `json:"deadline"` // 0 = none
	Nonce        *big.Int       `json:"nonce"`
	Salt         common.Hash    `json:"salt"`
}

// Hook data a swapper attaches to a pool swap
type SwapHint struct {
	MaxSlippageBps uint64       `json:"max_slippage_bps"` // 0 = no check
	Batch          bool         `json:"batch"`
	MinAmountOut   *big.Int     `json:"min_amount_out"`
	MaxPrice       *uint256.Int `json:"max_price"`
	MinPrice       *uint256.Int `json:"min_price"`
	AuxData        []byte       `json:"aux_data,omitempty"`
	Proof          []byte       `json:"proof,omitempty"`
}

type SwapDecision string

const (
	DecisionProceed  SwapDecision = "proceed"
	DecisionDeferred SwapDecision = "deferred"
)

// Zero-safe helpers for optional amounts and prices
func IsSet(v *uint256.Int) bool { return v != nil && !v.IsZero() }

func IsPositive(v *big.Int) bool { return v != nil && v.Sign() > 0 }

func CopyU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func CopyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
