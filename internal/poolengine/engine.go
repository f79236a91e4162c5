package poolengine

import (
	"context"
	"errors"

	"swapguard/internal/domain"

	"github.com/holiman/uint256"
)

var (
	ErrUnknownPool  = errors.New("pool has no price")
	ErrSwapReverted = errors.New("swap reverted")
)

type PriceSource interface {
	CurrentReferencePrice(ctx context.Context, pool domain.PoolID) (*uint256.Int, error)
}

type Swapper interface {
	ExecuteSwap(ctx context.Context, key domain.PoolKey, params domain.SwapParams, aux []byte) Result
}

// Engine is the pool collaborator the hook drives
type Engine interface {
	PriceSource
	Swapper
}

type Status uint8

const (
	StatusSettled Status = iota + 1
	StatusReverted
)

func (s Status) String() string {
	switch s {
	case StatusSettled:
		return "settled"
	case StatusReverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of ExecuteSwap; Delta is meaningful only when settled
type Result struct {
	Status Status
	Delta  domain.BalanceDelta
	Err    error
}

func Settled(delta domain.BalanceDelta) Result {
	return Result{Status: StatusSettled, Delta: delta}
}

func Reverted(err error) Result {
	if err == nil {
		err = ErrSwapReverted
	}
	return Result{Status: StatusReverted, Err: err}
}

func (r Result) OK() bool { return r.Status == StatusSettled }
