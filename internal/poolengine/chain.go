package poolengine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Uniswap v4 StateView, only the slot0 getter is needed
const stateViewABI = `[
	{
		"inputs": [{"internalType": "PoolId", "name": "poolId", "type": "bytes32"}],
		"name": "getSlot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint24", "name": "protocolFee", "type": "uint24"},
			{"internalType": "uint24", "name": "lpFee", "type": "uint24"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ChainPricer reads the live sqrt price of a pool from a StateView contract
type ChainPricer struct {
	caller    ethereum.ContractCaller
	stateView common.Address
	abi       abi.ABI
}

func NewChainPricer(caller ethereum.ContractCaller, stateView common.Address) (*ChainPricer, error) {
	if caller == nil {
		return nil, errors.New("contract caller is required to the chain pricer")
	}
	if stateView == (common.Address{}) {
		return nil, errors.New("state view address is required to the chain pricer")
	}

	parsed, err := abi.JSON(strings.NewReader(stateViewABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse state view ABI: %w", err)
	}

	return &ChainPricer{caller: caller, stateView: stateView, abi: parsed}, nil
}

func (c *ChainPricer) CurrentReferencePrice(ctx context.Context, pool domain.PoolID) (*uint256.Int, error) {
	data, err := c.abi.Pack("getSlot0", [32]byte(pool))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getSlot0: %w", err)
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.stateView, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getSlot0 call failed: %w", err)
	}

	vals, err := c.abi.Unpack("getSlot0", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getSlot0: %w", err)
	}
	if len(vals) == 0 {
		return nil, errors.New("getSlot0 returned no values")
	}

	sqrt, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected sqrtPriceX96 type %T", vals[0])
	}
	if sqrt.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, pool.Hex())
	}

	price, overflow := uint256.FromBig(sqrt)
	if overflow {
		return nil, errors.New("sqrtPriceX96 overflows 256 bits")
	}
	return price, nil
}
