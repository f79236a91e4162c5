package hook

import (
	"sort"

	"swapguard/internal/commitreveal"
	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// Read-only views. Unknown pools read as empty state rather than failing.

func (h *Hook) Owner() common.Address { return h.state.Roles.Owner }

func (h *Hook) IsExecutor(a common.Address) bool { return h.state.Roles.IsExecutor(a) }

// Pools lists known pool ids in byte order
func (h *Hook) Pools() []domain.PoolID {
	out := make([]domain.PoolID, 0, len(h.state.Pools))
	for id := range h.state.Pools {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (h *Hook) PoolKey(pool domain.PoolID) (domain.PoolKey, bool) {
	p, ok := h.state.Pools[pool]
	if !ok {
		return domain.PoolKey{}, false
	}
	return p.Key, true
}

func (h *Hook) PriceHistory(pool domain.PoolID, limit int) []domain.PriceSample {
	p := h.state.Pools[pool]
	if p == nil {
		return []domain.PriceSample{}
	}
	return p.History.Recent(limit)
}

func (h *Hook) Volatility(pool domain.PoolID) uint64 {
	p := h.state.Pools[pool]
	if p == nil {
		return 0
	}
	return h.estimator.Volatility(&p.History, h.now())
}

func (h *Hook) AdjustedSlippage(pool domain.PoolID) uint64 {
	p := h.state.Pools[pool]
	if p == nil {
		return h.estimator.AdjustedSlippage(nil, h.now())
	}
	return h.estimator.AdjustedSlippage(&p.History, h.now())
}

func (h *Hook) VolatilityState(pool domain.PoolID) domain.VolatilityState {
	p := h.state.Pools[pool]
	if p == nil {
		return domain.VolatilityState{}
	}
	return p.Volatility
}

func (h *Hook) BatchState(pool domain.PoolID) domain.BatchState {
	p := h.state.Pools[pool]
	if p == nil {
		return domain.BatchState{}
	}
	bs := p.Batch
	bs.ReferencePrice = domain.CopyU256(p.Batch.ReferencePrice)
	return bs
}

func (h *Hook) PendingCount(pool domain.PoolID, account common.Address) uint64 {
	p := h.state.Pools[pool]
	if p == nil {
		return 0
	}
	return p.Book.PendingCount(account)
}

func (h *Hook) CanExecute(pool domain.PoolID) bool {
	p := h.state.Pools[pool]
	if p == nil {
		return false
	}
	return h.queue.CanExecute(&p.Book, &p.Batch, h.now())
}

func (h *Hook) QueueLength(pool domain.PoolID) int {
	p := h.state.Pools[pool]
	if p == nil {
		return 0
	}
	return p.Book.Len()
}

func (h *Hook) QueueDetails(pool domain.PoolID, start, count int) ([]domain.QueuedSwap, error) {
	p := h.state.Pools[pool]
	if p == nil {
		var empty PoolState
		return empty.Book.Details(start, count)
	}
	return p.Book.Details(start, count)
}

func (h *Hook) Commitment(pool domain.PoolID, account common.Address, index int) (domain.Commitment, bool) {
	p := h.state.Pools[pool]
	if p == nil {
		return domain.Commitment{}, false
	}
	return p.Round.Commitment(account, index)
}

func (h *Hook) CommitmentCount(pool domain.PoolID, account common.Address) int {
	p := h.state.Pools[pool]
	if p == nil {
		return 0
	}
	return p.Round.CommitmentCount(account)
}

func (h *Hook) RevealedSwap(pool domain.PoolID, hash common.Hash) (domain.RevealedSwap, bool) {
	p := h.state.Pools[pool]
	if p == nil {
		return domain.RevealedSwap{}, false
	}
	return p.Round.RevealedSwap(hash)
}

func (h *Hook) CommitHashes(pool domain.PoolID) []common.Hash {
	p := h.state.Pools[pool]
	if p == nil {
		return nil
	}
	return p.Round.CommitHashes()
}

// ComputeCommitHash lets a committer derive the hash to submit before revealing
func (h *Hook) ComputeCommitHash(swap domain.RevealedSwap) (common.Hash, error) {
	return commitreveal.Hash(swap)
}
