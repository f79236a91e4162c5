package handlers

import (
	"context"
	"math/big"
	"net/http"

	"swapguard/internal/batch"
	"swapguard/internal/domain"
	"swapguard/internal/hook"
	"swapguard/internal/queue"
	"swapguard/pkg/httputil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

type beforeSwapRequest struct {
	PoolKey domain.PoolKey    `json:"pool_key"`
	Params  domain.SwapParams `json:"params"`
	Hint    domain.SwapHint   `json:"hint"`
}

// BeforeSwap is the host adapter's pre-swap call; caller is the swapping account
func (a *Handler) BeforeSwap(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req beforeSwapRequest
	if err = httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	var decision domain.SwapDecision
	err = a.Service.Update(r.Context(), func(h *hook.Hook) error {
		decision, err = h.BeforeSwap(r.Context(), from, req.PoolKey, req.Params, req.Hint)
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusOK, map[string]domain.SwapDecision{"decision": decision})
}

type queueSwapRequest struct {
	PoolID       domain.PoolID     `json:"pool_id"`
	Params       domain.SwapParams `json:"params"`
	MinAmountOut *big.Int          `json:"min_amount_out"`
	MaxPrice     *uint256.Int      `json:"max_price"`
	MinPrice     *uint256.Int      `json:"min_price"`
	AuxData      hexutil.Bytes     `json:"aux_data"`
}

type receiptView struct {
	Index            int          `json:"index"`
	BatchInitialized bool         `json:"batch_initialized"`
	ReferencePrice   *uint256.Int `json:"reference_price"`
}

func (a *Handler) QueueSwap(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req queueSwapRequest
	if err = httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	var rcpt queue.Receipt
	err = a.Service.Update(r.Context(), func(h *hook.Hook) error {
		rcpt, err = h.QueueSwap(r.Context(), from, req.PoolID, req.Params, req.MinAmountOut, req.MaxPrice, req.MinPrice, req.AuxData)
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusCreated, receiptView{Index: rcpt.Index, BatchInitialized: rcpt.BatchInitialized, ReferencePrice: rcpt.ReferencePrice})
}

type runRequest struct {
	PoolID domain.PoolID `json:"pool_id"`
	Proof  hexutil.Bytes `json:"proof"`
}

type outcomeView struct {
	Index  int            `json:"index"`
	User   common.Address `json:"user"`
	Status string         `json:"status"`
	Reason string         `json:"reason,omitempty"`
	Output *big.Int       `json:"output,omitempty"`
}

type reportView struct {
	Executed uint64        `json:"executed"`
	Failed   uint64        `json:"failed"`
	Removed  int           `json:"removed"`
	Outcomes []outcomeView `json:"outcomes"`
}

func newReportView(rep batch.Report) reportView {
	v := reportView{Executed: rep.Executed, Failed: rep.Failed, Removed: rep.Removed, Outcomes: make([]outcomeView, 0, len(rep.Outcomes))}
	for _, o := range rep.Outcomes {
		v.Outcomes = append(v.Outcomes, outcomeView{
			Index:  o.Index,
			User:   o.Item.User,
			Status: o.Status.String(),
			Reason: string(o.Reason),
			Output: o.Output,
		})
	}
	return v
}

type runFunc func(ctx context.Context, h *hook.Hook, from common.Address, req runRequest) (batch.Report, error)

// batchRun adapts the three executor-only batch entry points. A started pass runs to the end
// even if the client goes away, so one batch is never split across two calls.
func (a *Handler) batchRun(run runFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := caller(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		var req runRequest
		if err = httputil.DecodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		ctx := context.WithoutCancel(r.Context())
		var rep batch.Report
		err = a.Service.Update(ctx, func(h *hook.Hook) error {
			rep, err = run(ctx, h, from, req)
			return err
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.ok(w, http.StatusOK, newReportView(rep))
	}
}

func (a *Handler) ExecuteBatch() http.HandlerFunc {
	return a.batchRun(func(ctx context.Context, h *hook.Hook, from common.Address, req runRequest) (batch.Report, error) {
		return h.ExecuteBatch(ctx, from, req.PoolID, req.Proof)
	})
}

func (a *Handler) EmergencyExecuteBatch() http.HandlerFunc {
	return a.batchRun(func(ctx context.Context, h *hook.Hook, from common.Address, req runRequest) (batch.Report, error) {
		return h.EmergencyExecuteBatch(ctx, from, req.PoolID, req.Proof)
	})
}

func (a *Handler) ExecuteBatchAfterReveal() http.HandlerFunc {
	return a.batchRun(func(ctx context.Context, h *hook.Hook, from common.Address, req runRequest) (batch.Report, error) {
		return h.ExecuteBatchAfterReveal(ctx, from, req.PoolID, req.Proof)
	})
}

type poolRequest struct {
	PoolID domain.PoolID `json:"pool_id"`
}

func (a *Handler) StartCommitPhase(w http.ResponseWriter, r *http.Request) {
	a.phase(w, r, func(h *hook.Hook, from common.Address, pool domain.PoolID) error {
		return h.StartCommitPhase(r.Context(), from, pool)
	})
}

func (a *Handler) StartRevealPhase(w http.ResponseWriter, r *http.Request) {
	a.phase(w, r, func(h *hook.Hook, from common.Address, pool domain.PoolID) error {
		return h.StartRevealPhase(r.Context(), from, pool)
	})
}

func (a *Handler) phase(w http.ResponseWriter, r *http.Request, start func(h *hook.Hook, from common.Address, pool domain.PoolID) error) {
	from, err := caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req poolRequest
	if err = httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	if err = a.Service.Update(r.Context(), func(h *hook.Hook) error { return start(h, from, req.PoolID) }); err != nil {
		a.fail(w, r, err)
		return
	}
	var bs domain.BatchState
	a.Service.View(func(h *hook.Hook) { bs = h.BatchState(req.PoolID) })
	a.ok(w, http.StatusOK, bs)
}

type commitRequest struct {
	PoolID domain.PoolID `json:"pool_id"`
	Hash   common.Hash   `json:"hash"`
}

func (a *Handler) CommitSwap(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req commitRequest
	if err = httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	var idx int
	err = a.Service.Update(r.Context(), func(h *hook.Hook) error {
		idx, err = h.CommitSwap(r.Context(), from, req.PoolID, req.Hash)
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusCreated, map[string]int{"index": idx})
}

type revealRequest struct {
	PoolID domain.PoolID       `json:"pool_id"`
	Index  int                 `json:"index"`
	Swap   domain.RevealedSwap `json:"swap"`
}

// RevealSwap answers 200 with valid=false for a mismatching preimage; the commitment stays open
func (a *Handler) RevealSwap(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req revealRequest
	if err = httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Index < 0 {
		a.fail(w, r, badRequest("index must be non-negative"))
		return
	}

	var valid bool
	err = a.Service.Update(r.Context(), func(h *hook.Hook) error {
		valid, err = h.RevealSwap(r.Context(), from, req.PoolID, req.Index, req.Swap)
		return err
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusOK, map[string]bool{"valid": valid})
}

// ComputeCommitHash is a stateless helper for clients building commitments
func (a *Handler) ComputeCommitHash(w http.ResponseWriter, r *http.Request) {
	var swap domain.RevealedSwap
	if err := httputil.DecodeJSON(r, &swap); err != nil {
		a.fail(w, r, err)
		return
	}

	var (
		hash common.Hash
		err  error
	)
	a.Service.View(func(h *hook.Hook) { hash, err = h.ComputeCommitHash(swap) })
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusOK, map[string]common.Hash{"hash": hash})
}
