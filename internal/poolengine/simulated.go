package poolengine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"swapguard/internal/domain"

	"github.com/holiman/uint256"
)

const pipsBase = 1_000_000

var (
	q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	ErrZeroAmount = errors.New("amount specified is zero")
)

// SwapRecord is what the simulated engine remembers about each settled swap
type SwapRecord struct {
	Pool   domain.PoolID
	Params domain.SwapParams
	Delta  domain.BalanceDelta
	Aux    []byte
}

// SwapCallback runs inside ExecuteSwap before settlement, the way a pool calls back into its hook
type SwapCallback func(ctx context.Context, key domain.PoolKey, params domain.SwapParams)

// Simulated fills swaps at the execution price limit (or the pool price when unset) minus the pool fee.
// It keeps no tick or liquidity accounting; prices only move through SetPrice.
type Simulated struct {
	mu       sync.Mutex
	feePips  uint32
	prices   map[domain.PoolID]*uint256.Int
	failures map[domain.PoolID][]error
	source   PriceSource
	onSwap   SwapCallback
	swaps    []SwapRecord
}

type SimulatedOption func(*Simulated)

// WithPriceSource reads reference prices from source (e.g. chain) instead of the local table
func WithPriceSource(source PriceSource) SimulatedOption {
	return func(s *Simulated) { s.source = source }
}

func WithSwapCallback(cb SwapCallback) SimulatedOption {
	return func(s *Simulated) { s.onSwap = cb }
}

func NewSimulated(feePips uint32, opts ...SimulatedOption) *Simulated {
	if feePips >= pipsBase {
		feePips = 0
	}
	s := &Simulated{
		feePips:  feePips,
		prices:   make(map[domain.PoolID]*uint256.Int),
		failures: make(map[domain.PoolID][]error),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Simulated) SetPrice(pool domain.PoolID, sqrtPriceX96 *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[pool] = domain.CopyU256(sqrtPriceX96)
}

// FailNext makes the next ExecuteSwap on pool revert with err
func (s *Simulated) FailNext(pool domain.PoolID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[pool] = append(s.failures[pool], err)
}

func (s *Simulated) Swaps() []SwapRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SwapRecord, len(s.swaps))
	copy(out, s.swaps)
	return out
}

func (s *Simulated) CurrentReferencePrice(ctx context.Context, pool domain.PoolID) (*uint256.Int, error) {
	if s.source != nil {
		return s.source.CurrentReferencePrice(ctx, pool)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prices[pool]
	if !ok || p.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, pool.Hex())
	}
	return new(uint256.Int).Set(p), nil
}

func (s *Simulated) ExecuteSwap(ctx context.Context, key domain.PoolKey, params domain.SwapParams, aux []byte) Result {
	pool := key.ID()

	// callback runs without the engine lock so the hook may read prices from inside it
	if s.onSwap != nil {
		s.onSwap(ctx, key, params)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if q := s.failures[pool]; len(q) > 0 {
		err := q[0]
		s.failures[pool] = q[1:]
		return Reverted(err)
	}

	if params.AmountSpecified == nil || params.AmountSpecified.Sign() == 0 {
		return Reverted(ErrZeroAmount)
	}

	price := params.SqrtPriceLimitX96
	if !domain.IsSet(price) {
		price = s.prices[pool]
	}
	if !domain.IsSet(price) {
		return Reverted(fmt.Errorf("%w: %s", ErrUnknownPool, pool.Hex()))
	}

	delta := fill(params, price.ToBig(), s.feePips)
	s.swaps = append(s.swaps, SwapRecord{
		Pool:   pool,
		Params: params,
		Delta:  delta,
		Aux:    append([]byte(nil), aux...),
	})

	return Settled(delta)
}

// fill prices one swap at sqrtP; token1 per token0 = sqrtP^2 / 2^192
func fill(params domain.SwapParams, sqrtP *big.Int, feePips uint32) domain.BalanceDelta {
	priceNum := new(big.Int).Mul(sqrtP, sqrtP)
	amount := new(big.Int).Abs(params.AmountSpecified)
	exactIn := params.AmountSpecified.Sign() < 0
	keep := big.NewInt(int64(pipsBase - feePips))
	base := big.NewInt(pipsBase)

	// convert x of the input token into the output token
	convert := func(x *big.Int, zeroForOne bool) *big.Int {
		if zeroForOne {
			return new(big.Int).Div(new(big.Int).Mul(x, priceNum), q192)
		}
		return new(big.Int).Div(new(big.Int).Mul(x, q192), priceNum)
	}
	// convert the output token back into the input token, rounding up
	invert := func(x *big.Int, zeroForOne bool) *big.Int {
		num, den := new(big.Int).Mul(x, q192), priceNum
		if !zeroForOne {
			num, den = new(big.Int).Mul(x, priceNum), q192
		}
		return ceilDiv(num, den)
	}

	var in, out *big.Int
	if exactIn {
		in = amount
		out = new(big.Int).Div(new(big.Int).Mul(convert(amount, params.ZeroForOne), keep), base)
	} else {
		out = amount
		in = ceilDiv(new(big.Int).Mul(invert(amount, params.ZeroForOne), base), keep)
	}

	if params.ZeroForOne {
		return domain.BalanceDelta{Amount0: new(big.Int).Neg(in), Amount1: out}
	}
	return domain.BalanceDelta{Amount0: out, Amount1: new(big.Int).Neg(in)}
}

func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
