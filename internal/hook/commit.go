package hook

import (
	"context"

	"swapguard/internal/avs"
	"swapguard/internal/batch"
	"swapguard/internal/domain"
	"swapguard/internal/queue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func (h *Hook) StartCommitPhase(ctx context.Context, caller common.Address, pool domain.PoolID) error {
	release, err := h.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if err = h.state.Roles.RequireExecutor(caller); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}

	now := h.now()
	if err = h.coord.StartCommit(&p.Batch, now); err != nil {
		return err
	}
	h.emit(ctx, domain.Event{Kind: domain.EventCommitPhaseStarted, PoolID: p.ID, Account: caller, Timestamp: now})
	return nil
}

// CommitSwap stores a commitment for caller and returns its per-account index
func (h *Hook) CommitSwap(ctx context.Context, caller common.Address, pool domain.PoolID, hash common.Hash) (int, error) {
	release, err := h.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()

	p, err := h.pool(pool)
	if err != nil {
		return 0, err
	}

	now := h.now()
	idx, err := h.coord.Commit(&p.Round, &p.Batch, caller, hash, now)
	if err != nil {
		return 0, err
	}
	h.emit(ctx, domain.Event{Kind: domain.EventSwapCommitted, PoolID: p.ID, Account: caller, Hash: hash, Index: uint64(idx), Timestamp: now})
	return idx, nil
}

func (h *Hook) StartRevealPhase(ctx context.Context, caller common.Address, pool domain.PoolID) error {
	release, err := h.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if err = h.state.Roles.RequireExecutor(caller); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}

	now := h.now()
	if err = h.coord.StartReveal(&p.Batch, now); err != nil {
		return err
	}
	h.emit(ctx, domain.Event{Kind: domain.EventRevealPhaseStarted, PoolID: p.ID, Account: caller, Timestamp: now})
	return nil
}

// RevealSwap opens caller's commitment at index. A mismatching preimage does not fail the
// call: it returns false, emits invalid_reveal and leaves the commitment open.
func (h *Hook) RevealSwap(ctx context.Context, caller common.Address, pool domain.PoolID, index int, swap domain.RevealedSwap) (bool, error) {
	release, err := h.guard.Enter()
	if err != nil {
		return false, err
	}
	defer release()

	p, err := h.pool(pool)
	if err != nil {
		return false, err
	}

	now := h.now()
	hash, ok, err := h.coord.Reveal(&p.Round, &p.Batch, caller, index, swap, now)
	if err != nil {
		return false, err
	}

	kind := domain.EventSwapRevealed
	if !ok {
		kind = domain.EventInvalidReveal
		h.log.Warnf("Invalid reveal, pool=%s account=%s index=%d", p.ID.Hex(), caller.Hex(), index)
	}
	h.emit(ctx, domain.Event{Kind: kind, PoolID: p.ID, Account: caller, Hash: hash, Index: uint64(index), Timestamp: now})
	return ok, nil
}

// ExecuteBatchAfterReveal promotes this round's revealed swaps into the queue, executes the
// queue at a freshly read price and closes the round.
func (h *Hook) ExecuteBatchAfterReveal(ctx context.Context, caller common.Address, pool domain.PoolID, proof []byte) (batch.Report, error) {
	release, err := h.guard.Enter()
	if err != nil {
		return batch.Report{}, err
	}
	defer release()

	p, err := h.authorizeRun(ctx, avs.ActionRevealBatch, caller, pool, proof)
	if err != nil {
		return batch.Report{}, err
	}

	now := h.now()
	if err = h.coord.ReadyToExecute(&p.Batch, now); err != nil {
		return batch.Report{}, err
	}

	ref, err := h.freshPrice(ctx, p)
	if err != nil {
		return batch.Report{}, err
	}

	h.promote(ctx, p, ref, now)
	p.Batch.ReferencePrice = domain.CopyU256(ref)

	rep := h.batch.Execute(ctx, p.Key, &p.Book, ref)
	h.coord.FinishRound(&p.Round, &p.Batch)
	h.finishBatch(ctx, p, rep, ref)
	return rep, nil
}

// promote copies revealed swaps into the queue. Expired or malformed reveals are consumed
// with a swap_failed signal so no later round picks them up.
func (h *Hook) promote(ctx context.Context, p *PoolState, ref *uint256.Int, now uint64) {
	for _, pr := range h.coord.Promotable(&p.Round) {
		s := pr.Swap
		h.coord.MarkPromoted(&p.Round, pr.Hash)

		if s.Deadline != 0 && now > s.Deadline {
			h.promotionFailed(ctx, p, pr.Hash, s, batch.ReasonDeadlineExpired, now)
			continue
		}

		req := queue.Request{
			Account:        s.Committer,
			Params:         s.Params,
			MinAmountOut:   s.MinAmountOut,
			MaxPrice:       s.MaxPrice,
			MinPrice:       s.MinPrice,
			AuxData:        s.AuxData,
			CommitmentHash: pr.Hash,
		}
		rcpt, err := h.queue.EnqueueAt(&p.Book, &p.Batch, req, now, ref)
		if err != nil {
			h.log.Warnf("Failed to promote revealed swap, hash=%s, error=%v", pr.Hash.Hex(), err)
			h.promotionFailed(ctx, p, pr.Hash, s, batch.ReasonInvalidRequest, now)
			continue
		}
		h.afterEnqueue(ctx, p, req, rcpt, now)
	}
}

func (h *Hook) promotionFailed(ctx context.Context, p *PoolState, hash common.Hash, s domain.RevealedSwap, reason batch.FailureReason, now uint64) {
	h.emit(ctx, domain.Event{
		Kind:      domain.EventSwapFailed,
		PoolID:    p.ID,
		Account:   s.Committer,
		Hash:      hash,
		Amount:    domain.CopyBig(s.Params.AmountSpecified),
		Reason:    string(reason),
		Timestamp: now,
	})
}
