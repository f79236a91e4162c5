package batch

import (
	"context"
	"math/big"

	"swapguard/internal/domain"
	"swapguard/internal/poolengine"
	"swapguard/internal/queue"

	"github.com/holiman/uint256"
)

// Upper bound of items touched by one execution pass
const DefaultMaxItems = 100

type FailureReason string

const (
	ReasonPriceBelowMin    FailureReason = "price_below_min"
	ReasonPriceAboveMax    FailureReason = "price_above_max"
	ReasonSwapFailed       FailureReason = "swap_failed"
	ReasonMinOutputNotMet  FailureReason = "min_output_not_met"
	ReasonDeadlineExpired  FailureReason = "deadline_expired"
	ReasonInvalidRequest   FailureReason = "invalid_request"
	ReasonExecutionStopped FailureReason = "execution_stopped"
)

type OutcomeStatus int

const (
	// item ran and counts toward the executed total
	OutcomeExecuted OutcomeStatus = iota
	// item left pending in the queue
	OutcomeSkipped
	// swap settled on the pool but the item failed bookkeeping checks; never retried
	OutcomeSettledFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeExecuted:
		return "executed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSettledFailed:
		return "settled_failed"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Index   int
	Item    domain.QueuedSwap
	Status  OutcomeStatus
	Reason  FailureReason
	Delta   domain.BalanceDelta
	Output  *big.Int
	SwapErr error
}

// Report sums up one pass; Executed is what callers must check, a pass can succeed with zero executions
type Report struct {
	Executed uint64
	Failed   uint64
	Removed  int
	Outcomes []Outcome
}

type Engine struct {
	maxItems int
	swapper  poolengine.Swapper
}

func NewEngine(maxItems int, swapper poolengine.Swapper) *Engine {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Engine{maxItems: maxItems, swapper: swapper}
}

func (e *Engine) MaxItems() int { return e.maxItems }

// Execute runs the queued swaps of one pool in FIFO order at the reference price and compacts the queue.
// Item failures are reported in the outcomes and never abort the pass.
func (e *Engine) Execute(ctx context.Context, key domain.PoolKey, book *queue.Book, ref *uint256.Int) Report {
	var rep Report
	if ref == nil {
		ref = new(uint256.Int)
	}

	limit := book.Len()
	if limit > e.maxItems {
		limit = e.maxItems
	}

	for i := 0; i < limit; i++ {
		item := book.Items[i]
		if item.Executed {
			continue
		}

		if ctx.Err() != nil {
			rep.skip(i, item, ReasonExecutionStopped, ctx.Err())
			continue
		}

		if reason := checkBounds(item, ref); reason != "" {
			rep.skip(i, item, reason, nil)
			continue
		}

		params := domain.SwapParams{
			ZeroForOne:        item.Params.ZeroForOne,
			AmountSpecified:   domain.CopyBig(item.Params.AmountSpecified),
			SqrtPriceLimitX96: domain.CopyU256(ref),
		}
		res := e.swapper.ExecuteSwap(ctx, key, params, item.AuxData)
		if !res.OK() {
			rep.skip(i, item, ReasonSwapFailed, res.Err)
			continue
		}

		out := res.Delta.Output(item.Params.ZeroForOne)
		if domain.IsPositive(item.MinAmountOut) && (out.Sign() < 0 || out.Cmp(item.MinAmountOut) < 0) {
			// tokens already moved on the pool side, so the item must not run again
			book.MarkExecuted(i)
			rep.Failed++
			rep.Outcomes = append(rep.Outcomes, Outcome{
				Index: i, Item: item, Status: OutcomeSettledFailed,
				Reason: ReasonMinOutputNotMet, Delta: res.Delta, Output: out,
			})
			continue
		}

		book.MarkExecuted(i)
		rep.Executed++
		rep.Outcomes = append(rep.Outcomes, Outcome{
			Index: i, Item: item, Status: OutcomeExecuted, Delta: res.Delta, Output: out,
		})
	}

	rep.Removed = book.Compact()
	return rep
}

func (r *Report) skip(i int, item domain.QueuedSwap, reason FailureReason, err error) {
	r.Failed++
	r.Outcomes = append(r.Outcomes, Outcome{Index: i, Item: item, Status: OutcomeSkipped, Reason: reason, SwapErr: err})
}

// checkBounds: zeroForOne buys token1 and needs ref >= min; the other side needs ref <= max
func checkBounds(item domain.QueuedSwap, ref *uint256.Int) FailureReason {
	if item.Params.ZeroForOne {
		if domain.IsSet(item.MinPriceLimit) && ref.Lt(item.MinPriceLimit) {
			return ReasonPriceBelowMin
		}
		return ""
	}
	if domain.IsSet(item.MaxPriceLimit) && ref.Gt(item.MaxPriceLimit) {
		return ReasonPriceAboveMax
	}
	return ""
}
