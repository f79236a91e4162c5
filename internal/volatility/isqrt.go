package volatility

import "github.com/holiman/uint256"

// ISqrt returns floor(sqrt(x)) by Newton iteration; ISqrt(0) == 0
func ISqrt(x *uint256.Int) *uint256.Int {
	if x == nil || x.IsZero() {
		return new(uint256.Int)
	}

	// z0 = ceil(x/2) without overflowing at x = 2^256-1
	z := new(uint256.Int).Rsh(x, 1)
	if x.Uint64()&1 == 1 {
		z.AddUint64(z, 1)
	}
	y := new(uint256.Int).Set(x)

	q := new(uint256.Int)
	for z.Lt(y) {
		y.Set(z)
		q.Div(x, z)
		z.Add(q, z)
		z.Rsh(z, 1)
	}

	return y
}
