package commitreveal

import (
	"errors"
	"fmt"

	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidPreimage = errors.New("invalid commitment preimage")

// Price words are encoded as uint256; bounds are checked to 160 bits so the bytes equal a uint160 encoding
var preimageArgs = abi.Arguments{
	{Type: domain.MustABIType("address")}, // committer
	{Type: domain.MustABIType("bool")},    // zeroForOne
	{Type: domain.MustABIType("int256")},  // amountSpecified
	{Type: domain.MustABIType("uint256")}, // sqrtPriceLimitX96
	{Type: domain.MustABIType("uint256")}, // minAmountOut
	{Type: domain.MustABIType("uint256")}, // maxPrice
	{Type: domain.MustABIType("uint256")}, // minPrice
	{Type: domain.MustABIType("bytes")},   // auxData
	{Type: domain.MustABIType("uint256")}, // nonce
	{Type: domain.MustABIType("bytes32")}, // salt
}

// Hash is keccak256 over the ABI encoding of the full reveal. Deadline is not committed.
func Hash(r domain.RevealedSwap) (common.Hash, error) {
	if err := domain.CheckSwapBounds(r.Params, r.MinAmountOut, r.MaxPrice, r.MinPrice); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrInvalidPreimage, err)
	}
	if err := domain.CheckUint256("nonce", r.Nonce); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrInvalidPreimage, err)
	}

	aux := r.AuxData
	if aux == nil {
		aux = []byte{}
	}

	enc, err := preimageArgs.Pack(
		r.Committer,
		r.Params.ZeroForOne,
		domain.CopyBig(r.Params.AmountSpecified),
		domain.CopyU256(r.Params.SqrtPriceLimitX96).ToBig(),
		domain.CopyBig(r.MinAmountOut),
		domain.CopyU256(r.MaxPrice).ToBig(),
		domain.CopyU256(r.MinPrice).ToBig(),
		aux,
		domain.CopyBig(r.Nonce),
		[32]byte(r.Salt),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrInvalidPreimage, err)
	}
	return crypto.Keccak256Hash(enc), nil
}

