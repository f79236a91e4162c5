package poolengine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey = domain.PoolKey{
		Currency0:   common.HexToAddress("0x01"),
		Currency1:   common.HexToAddress("0x02"),
		Fee:         3000,
		TickSpacing: 60,
	}
	// sqrt(1) in Q64.96: token1 per token0 = 1
	priceOne = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	// sqrt(4) in Q64.96: token1 per token0 = 4
	priceFour = new(uint256.Int).Lsh(uint256.NewInt(2), 96)
)

// ========== Simulated Tests ==========

func TestSimulated_ReferencePrice(t *testing.T) {
	s := NewSimulated(0)
	ctx := context.Background()

	_, err := s.CurrentReferencePrice(ctx, testKey.ID())
	assert.ErrorIs(t, err, ErrUnknownPool)

	s.SetPrice(testKey.ID(), priceFour)
	p, err := s.CurrentReferencePrice(ctx, testKey.ID())
	require.NoError(t, err)
	assert.Equal(t, priceFour, p)

	p.SetUint64(1)
	again, _ := s.CurrentReferencePrice(ctx, testKey.ID())
	assert.Equal(t, priceFour, again, "returned price is a copy")
}

func TestSimulated_ExecuteSwapFills(t *testing.T) {
	tests := []struct {
		name    string
		params  domain.SwapParams
		fee     uint32
		amount0 int64
		amount1 int64
	}{
		{
			name:    "zeroForOne exact in",
			params:  domain.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-100), SqrtPriceLimitX96: priceFour},
			amount0: -100, amount1: 400,
		},
		{
			name:    "oneForZero exact in",
			params:  domain.SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(-400), SqrtPriceLimitX96: priceFour},
			amount0: 100, amount1: -400,
		},
		{
			name:    "zeroForOne exact out",
			params:  domain.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(400), SqrtPriceLimitX96: priceFour},
			amount0: -100, amount1: 400,
		},
		{
			name:    "fee reduces output",
			params:  domain.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1000), SqrtPriceLimitX96: priceOne},
			fee:     3000,
			amount0: -1000, amount1: 997,
		},
		{
			name:    "pool price used without limit",
			params:  domain.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-10)},
			amount0: -10, amount1: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulated(tt.fee)
			s.SetPrice(testKey.ID(), priceOne)

			res := s.ExecuteSwap(context.Background(), testKey, tt.params, []byte{0x1})

			require.True(t, res.OK(), "err=%v", res.Err)
			assert.Equal(t, StatusSettled, res.Status)
			assert.Equal(t, tt.amount0, res.Delta.Amount0.Int64())
			assert.Equal(t, tt.amount1, res.Delta.Amount1.Int64())
			assert.Len(t, s.Swaps(), 1)
		})
	}
}

func TestSimulated_Reverts(t *testing.T) {
	s := NewSimulated(0)
	ctx := context.Background()
	params := domain.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1)}

	res := s.ExecuteSwap(ctx, testKey, params, nil)
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrUnknownPool)

	s.SetPrice(testKey.ID(), priceOne)
	res = s.ExecuteSwap(ctx, testKey, domain.SwapParams{AmountSpecified: big.NewInt(0)}, nil)
	assert.ErrorIs(t, res.Err, ErrZeroAmount)

	boom := errors.New("insufficient liquidity")
	s.FailNext(testKey.ID(), boom)
	res = s.ExecuteSwap(ctx, testKey, params, nil)
	assert.Equal(t, StatusReverted, res.Status)
	assert.ErrorIs(t, res.Err, boom)

	res = s.ExecuteSwap(ctx, testKey, params, nil)
	assert.True(t, res.OK(), "scripted failure is consumed once")
}

func TestSimulated_CallbackRunsBeforeSettlement(t *testing.T) {
	var calls int
	var s *Simulated
	s = NewSimulated(0, WithSwapCallback(func(ctx context.Context, key domain.PoolKey, params domain.SwapParams) {
		calls++
		// engine lock is not held here
		_, err := s.CurrentReferencePrice(ctx, key.ID())
		assert.NoError(t, err)
	}))
	s.SetPrice(testKey.ID(), priceOne)

	res := s.ExecuteSwap(context.Background(), testKey, domain.SwapParams{AmountSpecified: big.NewInt(-5)}, nil)

	assert.True(t, res.OK())
	assert.Equal(t, 1, calls)
}

func TestResult_Reverted_NilError(t *testing.T) {
	r := Reverted(nil)

	assert.False(t, r.OK())
	assert.ErrorIs(t, r.Err, ErrSwapReverted)
	assert.Equal(t, "reverted", r.Status.String())
}

// ========== ChainPricer Tests ==========

type fakeCaller struct {
	out  []byte
	err  error
	last ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.last = msg
	return f.out, f.err
}

func packSlot0(t *testing.T, p *ChainPricer, sqrt *big.Int) []byte {
	t.Helper()
	out, err := p.abi.Methods["getSlot0"].Outputs.Pack(sqrt, big.NewInt(-120), big.NewInt(0), big.NewInt(3000))
	require.NoError(t, err)
	return out
}

func TestChainPricer_ReadsSlot0(t *testing.T) {
	stateView := common.HexToAddress("0x7ffe42c4a5deea5b0fec41c94c136cf115597227")
	caller := &fakeCaller{}

	p, err := NewChainPricer(caller, stateView)
	require.NoError(t, err)
	caller.out = packSlot0(t, p, priceFour.ToBig())

	got, err := p.CurrentReferencePrice(context.Background(), testKey.ID())
	require.NoError(t, err)
	assert.Equal(t, priceFour, got)

	require.NotNil(t, caller.last.To)
	assert.Equal(t, stateView, *caller.last.To)
	assert.Equal(t, p.abi.Methods["getSlot0"].ID, caller.last.Data[:4])
	assert.Equal(t, testKey.ID().Bytes(), caller.last.Data[4:36])
}

func TestChainPricer_Errors(t *testing.T) {
	_, err := NewChainPricer(nil, common.HexToAddress("0x01"))
	assert.Error(t, err)
	_, err = NewChainPricer(&fakeCaller{}, common.Address{})
	assert.Error(t, err)

	caller := &fakeCaller{err: errors.New("rpc down")}
	p, err := NewChainPricer(caller, common.HexToAddress("0x01"))
	require.NoError(t, err)

	_, err = p.CurrentReferencePrice(context.Background(), testKey.ID())
	assert.ErrorContains(t, err, "rpc down")

	caller.err = nil
	caller.out = packSlot0(t, p, big.NewInt(0))
	_, err = p.CurrentReferencePrice(context.Background(), testKey.ID())
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestSimulated_WithPriceSource(t *testing.T) {
	caller := &fakeCaller{}
	p, err := NewChainPricer(caller, common.HexToAddress("0x01"))
	require.NoError(t, err)
	caller.out = packSlot0(t, p, priceOne.ToBig())

	s := NewSimulated(0, WithPriceSource(p))
	got, err := s.CurrentReferencePrice(context.Background(), testKey.ID())

	require.NoError(t, err)
	assert.Equal(t, priceOne, got)
}
