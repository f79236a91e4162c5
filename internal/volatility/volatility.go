package volatility

import (
	"math"
	"time"

	"swapguard/internal/domain"
	"swapguard/internal/history"

	"github.com/holiman/uint256"
)

type Params struct {
	Window     uint64 // seconds looked back from "now"
	MinSamples int    // below this the floor is returned as-is
	FloorBps   uint64
	CeilingBps uint64
	Multiplier uint64 // slippage = floor + volatility*multiplier/10000
}

func DefaultParams() Params {
	return Params{
		Window:     uint64((24 * time.Hour).Seconds()),
		MinSamples: 5,
		FloorBps:   10,
		CeilingBps: 500,
		Multiplier: 20_000,
	}
}

// Estimator derives volatility and the recommended slippage from a pool's price log
type Estimator struct {
	params Params
}

// NewEstimator fills zero fields from DefaultParams
func NewEstimator(p Params) *Estimator {
	def := DefaultParams()
	if p.Window == 0 {
		p.Window = def.Window
	}
	if p.MinSamples <= 0 {
		p.MinSamples = def.MinSamples
	}
	if p.FloorBps == 0 {
		p.FloorBps = def.FloorBps
	}
	if p.CeilingBps == 0 {
		p.CeilingBps = def.CeilingBps
	}
	if p.CeilingBps < p.FloorBps {
		p.CeilingBps = p.FloorBps
	}
	if p.Multiplier == 0 {
		p.Multiplier = def.Multiplier
	}
	return &Estimator{params: p}
}

func (e *Estimator) Params() Params { return e.params }

func (e *Estimator) Volatility(log *history.Log, now uint64) uint64 {
	if log == nil {
		return 0
	}
	return Compute(log.Samples, now, e.params.Window)
}

func (e *Estimator) AdjustedSlippage(log *history.Log, now uint64) uint64 {
	return Slippage(e.Volatility(log, now), log.Len(), e.params)
}

// Refresh recomputes the pool's volatility state after a recorded price
func (e *Estimator) Refresh(state *domain.VolatilityState, log *history.Log, now uint64) (vol, slippage uint64) {
	vol = e.Volatility(log, now)
	slippage = Slippage(vol, log.Len(), e.params)

	state.Volatility = vol
	state.LastUpdate = now
	state.SampleCount = uint64(log.Len())

	return vol, slippage
}

var bps = uint256.NewInt(domain.BasisPoints)

// Compute is the windowed standard deviation of basis-point returns in integer arithmetic:
// sqrt(mean(r^2/10000) - mean(r)^2/10000). Fewer than 2 usable pairs yield 0.
func Compute(samples []domain.PriceSample, now, window uint64) uint64 {
	if len(samples) < 2 {
		return 0
	}

	var cutoff uint64
	if now > window {
		cutoff = now - window
	}

	var n uint64
	sum, sumSq := new(uint256.Int), new(uint256.Int)
	diff := new(uint256.Int)

	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if prev.Timestamp < cutoff || !domain.IsSet(prev.Price) {
			continue
		}

		curPrice := domain.CopyU256(cur.Price)
		if curPrice.Lt(prev.Price) {
			diff.Sub(prev.Price, curPrice)
		} else {
			diff.Sub(curPrice, prev.Price)
		}

		r, _ := new(uint256.Int).MulDivOverflow(diff, bps, prev.Price)
		sq, overflow := new(uint256.Int).MulDivOverflow(r, r, bps)
		if overflow {
			sq.SetAllOne()
		}

		satAdd(sum, r)
		satAdd(sumSq, sq)
		n++
	}

	if n < 2 {
		return 0
	}

	count := uint256.NewInt(n)
	mean := new(uint256.Int).Div(sum, count)
	meanSq := new(uint256.Int).Div(sumSq, count)

	meanTerm, overflow := new(uint256.Int).MulDivOverflow(mean, mean, bps)
	if overflow {
		meanTerm.SetAllOne()
	}

	// truncation can push the difference below zero; saturate
	variance := new(uint256.Int)
	if meanSq.Gt(meanTerm) {
		variance.Sub(meanSq, meanTerm)
	}

	vol := ISqrt(variance)
	if !vol.IsUint64() {
		return math.MaxUint64
	}
	return vol.Uint64()
}

// Slippage is floor below MinSamples, otherwise floor + vol*multiplier/10000 clamped to the ceiling
func Slippage(vol uint64, sampleCount int, p Params) uint64 {
	if sampleCount < p.MinSamples {
		return p.FloorBps
	}

	extra, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(vol), uint256.NewInt(p.Multiplier), bps)
	if overflow || !extra.IsUint64() {
		return p.CeilingBps
	}

	adj := p.FloorBps + extra.Uint64()
	if adj < p.FloorBps || adj > p.CeilingBps {
		return p.CeilingBps
	}
	return adj
}

func satAdd(acc, v *uint256.Int) {
	if _, overflow := acc.AddOverflow(acc, v); overflow {
		acc.SetAllOne()
	}
}
