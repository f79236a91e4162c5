package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var ErrOutOfRange = errors.New("value outside its abi range")

var (
	maxInt256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt256  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// CheckInt256 accepts nil and values in [-2^255, 2^255)
func CheckInt256(name string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Cmp(minInt256) < 0 || v.Cmp(maxInt256) > 0 {
		return fmt.Errorf("%w: %s does not fit int256", ErrOutOfRange, name)
	}
	return nil
}

// CheckUint256 accepts nil and values in [0, 2^256)
func CheckUint256(name string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s is negative", ErrOutOfRange, name)
	}
	if v.Cmp(maxUint256) > 0 {
		return fmt.Errorf("%w: %s does not fit uint256", ErrOutOfRange, name)
	}
	return nil
}

// CheckUint160 accepts nil and values below 2^160
func CheckUint160(name string, v *uint256.Int) error {
	if v == nil {
		return nil
	}
	if v.BitLen() > 160 {
		return fmt.Errorf("%w: %s does not fit uint160", ErrOutOfRange, name)
	}
	return nil
}

// CheckSwapBounds range-checks the fields shared by queued requests and commit preimages
func CheckSwapBounds(params SwapParams, minAmountOut *big.Int, maxPrice, minPrice *uint256.Int) error {
	if err := CheckInt256("amount", params.AmountSpecified); err != nil {
		return err
	}
	if err := CheckUint160("sqrt price limit", params.SqrtPriceLimitX96); err != nil {
		return err
	}
	if err := CheckUint256("minimum output", minAmountOut); err != nil {
		return err
	}
	if err := CheckUint160("max price", maxPrice); err != nil {
		return err
	}
	return CheckUint160("min price", minPrice)
}
