package queue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"swapguard/internal/domain"
	"swapguard/internal/poolengine"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Default minimum age of a batch before it can be executed
const DefaultInterval = uint64(180)

var (
	ErrInvalidAmount      = errors.New("swap amount must be non-zero")
	ErrInvalidPriceBounds = errors.New("max price must be above min price")
	ErrIndexOutOfBounds   = errors.New("start index out of bounds")
	ErrReferencePrice     = errors.New("failed to capture reference price")
)

// Book is the pending-swap queue of one pool
type Book struct {
	Items   []domain.QueuedSwap
	Pending map[common.Address]uint64
}

func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Items)
}

func (b *Book) PendingCount(account common.Address) uint64 {
	if b == nil || b.Pending == nil {
		return 0
	}
	return b.Pending[account]
}

// MarkExecuted flags item i and releases one pending slot of its owner
func (b *Book) MarkExecuted(i int) {
	item := &b.Items[i]
	if item.Executed {
		return
	}
	item.Executed = true
	if b.Pending[item.User] > 0 {
		b.Pending[item.User]--
	}
	if b.Pending[item.User] == 0 {
		delete(b.Pending, item.User)
	}
}

// Compact drops executed items in one stable left-compaction pass and returns how many were removed
func (b *Book) Compact() int {
	w := 0
	for r := range b.Items {
		if b.Items[r].Executed {
			continue
		}
		if w != r {
			b.Items[w] = b.Items[r]
		}
		w++
	}

	removed := len(b.Items) - w
	for i := w; i < len(b.Items); i++ {
		b.Items[i] = domain.QueuedSwap{}
	}
	b.Items = b.Items[:w]
	return removed
}

// Details is the paginated view; start must be a valid index, start+count is clamped
func (b *Book) Details(start, count int) ([]domain.QueuedSwap, error) {
	if start < 0 || start >= b.Len() {
		return nil, fmt.Errorf("%w: start=%d length=%d", ErrIndexOutOfBounds, start, b.Len())
	}
	end := start + count
	if count < 0 || end > len(b.Items) {
		end = len(b.Items)
	}

	out := make([]domain.QueuedSwap, end-start)
	copy(out, b.Items[start:end])
	return out, nil
}

type Request struct {
	Account        common.Address
	Params         domain.SwapParams
	MinAmountOut   *big.Int
	MaxPrice       *uint256.Int
	MinPrice       *uint256.Int
	AuxData        []byte
	CommitmentHash common.Hash
}

// Validate applies the admission rules every enqueue path shares
func (r Request) Validate() error {
	if r.Params.AmountSpecified == nil || r.Params.AmountSpecified.Sign() == 0 {
		return ErrInvalidAmount
	}
	if domain.IsSet(r.MaxPrice) && domain.IsSet(r.MinPrice) && r.MaxPrice.Cmp(r.MinPrice) <= 0 {
		return ErrInvalidPriceBounds
	}
	if err := domain.CheckSwapBounds(r.Params, r.MinAmountOut, r.MaxPrice, r.MinPrice); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return nil
}

type Receipt struct {
	Index            int
	BatchInitialized bool
	ReferencePrice   *uint256.Int
}

// Queue holds the per-deployment queue parameters; pool state is passed in by the caller
type Queue struct {
	interval uint64
	prices   poolengine.PriceSource
}

func New(interval time.Duration, prices poolengine.PriceSource) *Queue {
	secs := uint64(interval / time.Second)
	if secs == 0 {
		secs = DefaultInterval
	}
	return &Queue{interval: secs, prices: prices}
}

func (q *Queue) Interval() uint64 { return q.interval }

// Enqueue appends a swap. The first item of an inactive batch captures the pool price as the
// batch reference price; a failed price read rejects the whole call with nothing mutated.
func (q *Queue) Enqueue(ctx context.Context, pool domain.PoolID, book *Book, batch *domain.BatchState, req Request, now uint64) (Receipt, error) {
	if err := req.Validate(); err != nil {
		return Receipt{}, err
	}

	var price *uint256.Int
	if !batch.BatchActive {
		p, err := q.prices.CurrentReferencePrice(ctx, pool)
		if err != nil {
			return Receipt{}, fmt.Errorf("%w: %w", ErrReferencePrice, err)
		}
		price = p
	}

	return q.EnqueueAt(book, batch, req, now, price)
}

// EnqueueAt is Enqueue with the pool price already read; price is only consulted when the batch is inactive
func (q *Queue) EnqueueAt(book *Book, batch *domain.BatchState, req Request, now uint64, price *uint256.Int) (Receipt, error) {
	if err := req.Validate(); err != nil {
		return Receipt{}, err
	}

	var rcpt Receipt
	if !batch.BatchActive {
		if !domain.IsSet(price) {
			return Receipt{}, fmt.Errorf("%w: zero price", ErrReferencePrice)
		}
		batch.ReferencePrice = domain.CopyU256(price)
		batch.BatchActive = true
		batch.BatchStartTime = now
		rcpt.BatchInitialized = true
		rcpt.ReferencePrice = domain.CopyU256(price)
	}

	book.Items = append(book.Items, domain.QueuedSwap{
		User: req.Account,
		Params: domain.SwapParams{
			ZeroForOne:        req.Params.ZeroForOne,
			AmountSpecified:   domain.CopyBig(req.Params.AmountSpecified),
			SqrtPriceLimitX96: domain.CopyU256(req.Params.SqrtPriceLimitX96),
		},
		QueueTime:      now,
		MinAmountOut:   domain.CopyBig(req.MinAmountOut),
		MaxPriceLimit:  domain.CopyU256(req.MaxPrice),
		MinPriceLimit:  domain.CopyU256(req.MinPrice),
		AuxData:        append([]byte(nil), req.AuxData...),
		CommitmentHash: req.CommitmentHash,
	})
	if book.Pending == nil {
		book.Pending = make(map[common.Address]uint64)
	}
	book.Pending[req.Account]++

	rcpt.Index = len(book.Items) - 1
	return rcpt, nil
}

// CanExecute: interval elapsed since batch start and something to run
func (q *Queue) CanExecute(book *Book, batch *domain.BatchState, now uint64) bool {
	if book.Len() == 0 {
		return false
	}
	return now >= batch.BatchStartTime && now-batch.BatchStartTime >= q.interval
}
