package handlers

import (
	"net/http"

	"swapguard/internal/commitreveal"
	"swapguard/internal/domain"
	"swapguard/internal/history"
	"swapguard/internal/hook"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

const defaultQueuePage = 50

type poolView struct {
	ID  domain.PoolID  `json:"id"`
	Key domain.PoolKey `json:"key"`
}

func (a *Handler) ListPools(w http.ResponseWriter, _ *http.Request) {
	out := []poolView{}
	a.Service.View(func(h *hook.Hook) {
		for _, id := range h.Pools() {
			k, _ := h.PoolKey(id)
			out = append(out, poolView{ID: id, Key: k})
		}
	})
	a.ok(w, http.StatusOK, out)
}

func (a *Handler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", history.DefaultCapacity)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var samples []domain.PriceSample
	a.Service.View(func(h *hook.Hook) { samples = h.PriceHistory(pool, limit) })
	a.ok(w, http.StatusOK, samples)
}

type volatilityView struct {
	Volatility       uint64                 `json:"volatility"`
	AdjustedSlippage uint64                 `json:"adjusted_slippage"`
	State            domain.VolatilityState `json:"state"`
}

func (a *Handler) Volatility(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var v volatilityView
	a.Service.View(func(h *hook.Hook) {
		v = volatilityView{
			Volatility:       h.Volatility(pool),
			AdjustedSlippage: h.AdjustedSlippage(pool),
			State:            h.VolatilityState(pool),
		}
	})
	a.ok(w, http.StatusOK, v)
}

type batchView struct {
	domain.BatchState
	CanExecute  bool `json:"can_execute"`
	QueueLength int  `json:"queue_length"`
}

func (a *Handler) BatchState(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var v batchView
	a.Service.View(func(h *hook.Hook) {
		v = batchView{BatchState: h.BatchState(pool), CanExecute: h.CanExecute(pool), QueueLength: h.QueueLength(pool)}
	})
	a.ok(w, http.StatusOK, v)
}

func (a *Handler) QueueDetails(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	start, err := intQuery(r, "start", 0)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	count, err := intQuery(r, "count", defaultQueuePage)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	items := []domain.QueuedSwap{}
	a.Service.View(func(h *hook.Hook) {
		// the first page of an empty queue is empty rather than out of bounds
		if start == 0 && h.QueueLength(pool) == 0 {
			return
		}
		items, err = h.QueueDetails(pool, start, count)
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusOK, items)
}

func (a *Handler) PendingCount(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		a.fail(w, r, badRequest(err.Error()))
		return
	}

	var n uint64
	a.Service.View(func(h *hook.Hook) { n = h.PendingCount(pool, account) })
	a.ok(w, http.StatusOK, map[string]uint64{"pending": n})
}

type commitmentsView struct {
	Count       int                 `json:"count"`
	Commitments []domain.Commitment `json:"commitments"`
}

// Commitments lists one account's commitments in the current round
func (a *Handler) Commitments(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		a.fail(w, r, badRequest(err.Error()))
		return
	}

	v := commitmentsView{Commitments: []domain.Commitment{}}
	a.Service.View(func(h *hook.Hook) {
		v.Count = h.CommitmentCount(pool, account)
		for i := 0; i < v.Count; i++ {
			if c, ok := h.Commitment(pool, account, i); ok {
				v.Commitments = append(v.Commitments, c)
			}
		}
	})
	a.ok(w, http.StatusOK, v)
}

func (a *Handler) CommitHashes(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	hashes := []common.Hash{}
	a.Service.View(func(h *hook.Hook) { hashes = append(hashes, h.CommitHashes(pool)...) })
	a.ok(w, http.StatusOK, hashes)
}

func (a *Handler) RevealedSwap(w http.ResponseWriter, r *http.Request) {
	pool, err := poolParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	raw := chi.URLParam(r, "hash")
	if len(raw) != 66 {
		a.fail(w, r, badRequest("hash must be 0x-prefixed 32 bytes"))
		return
	}
	hash := common.HexToHash(raw)

	var (
		swap domain.RevealedSwap
		ok   bool
	)
	a.Service.View(func(h *hook.Hook) { swap, ok = h.RevealedSwap(pool, hash) })
	if !ok {
		a.fail(w, r, commitreveal.ErrCommitmentNotFound)
		return
	}
	a.ok(w, http.StatusOK, swap)
}
