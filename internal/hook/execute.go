package hook

import (
	"context"
	"fmt"

	"swapguard/internal/avs"
	"swapguard/internal/batch"
	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ExecuteBatch runs the pool's queue at the reference price locked when the batch opened
func (h *Hook) ExecuteBatch(ctx context.Context, caller common.Address, pool domain.PoolID, proof []byte) (batch.Report, error) {
	release, err := h.guard.Enter()
	if err != nil {
		return batch.Report{}, err
	}
	defer release()

	p, err := h.authorizeRun(ctx, avs.ActionExecuteBatch, caller, pool, proof)
	if err != nil {
		return batch.Report{}, err
	}
	if p.Book.Len() == 0 {
		return batch.Report{}, ErrEmptyQueue
	}
	if !h.queue.CanExecute(&p.Book, &p.Batch, h.now()) {
		return batch.Report{}, fmt.Errorf("%w: started=%d interval=%d", ErrBatchNotReady, p.Batch.BatchStartTime, h.queue.Interval())
	}

	ref := domain.CopyU256(p.Batch.ReferencePrice)
	rep := h.batch.Execute(ctx, p.Key, &p.Book, ref)
	h.finishBatch(ctx, p, rep, ref)
	return rep, nil
}

// EmergencyExecuteBatch skips the batch interval and executes at a freshly read price
func (h *Hook) EmergencyExecuteBatch(ctx context.Context, caller common.Address, pool domain.PoolID, proof []byte) (batch.Report, error) {
	release, err := h.guard.Enter()
	if err != nil {
		return batch.Report{}, err
	}
	defer release()

	p, err := h.authorizeRun(ctx, avs.ActionEmergencyBatch, caller, pool, proof)
	if err != nil {
		return batch.Report{}, err
	}
	if p.Book.Len() == 0 {
		return batch.Report{}, ErrEmptyQueue
	}

	ref, err := h.freshPrice(ctx, p)
	if err != nil {
		return batch.Report{}, err
	}
	p.Batch.ReferencePrice = domain.CopyU256(ref)

	h.log.Warnf("Emergency batch execution, pool=%s caller=%s queued=%d", p.ID.Hex(), caller.Hex(), p.Book.Len())
	rep := h.batch.Execute(ctx, p.Key, &p.Book, ref)
	h.finishBatch(ctx, p, rep, ref)
	return rep, nil
}

func (h *Hook) authorizeRun(ctx context.Context, action string, caller common.Address, pool domain.PoolID, proof []byte) (*PoolState, error) {
	if err := h.state.Roles.RequireExecutor(caller); err != nil {
		return nil, err
	}
	p, err := h.pool(pool)
	if err != nil {
		return nil, err
	}
	if err = h.checkProof(ctx, action, caller, p, nil, proof); err != nil {
		return nil, err
	}
	return p, nil
}

func (h *Hook) freshPrice(ctx context.Context, p *PoolState) (*uint256.Int, error) {
	ref, err := h.engine.CurrentReferencePrice(ctx, p.ID)
	if err != nil {
		h.log.Errorf("Failed to read reference price, pool=%s, error=%v", p.ID.Hex(), err)
		return nil, fmt.Errorf("failed to read reference price: %w", err)
	}
	if !domain.IsSet(ref) {
		return nil, ErrZeroPrice
	}
	return ref, nil
}

// finishBatch updates the aggregate counters and emits the per-item failures and the batch summary
func (h *Hook) finishBatch(ctx context.Context, p *PoolState, rep batch.Report, ref *uint256.Int) {
	now := h.now()
	runID := uuid.NewString()

	p.Batch.BatchCount++
	p.Batch.TotalExecuted += rep.Executed
	if p.Book.Len() == 0 {
		p.Batch.BatchActive = false
	}

	for _, o := range rep.Outcomes {
		if o.Status == batch.OutcomeExecuted {
			continue
		}
		h.emit(ctx, domain.Event{
			Kind:      domain.EventSwapFailed,
			PoolID:    p.ID,
			Account:   o.Item.User,
			Hash:      o.Item.CommitmentHash,
			Amount:    domain.CopyBig(o.Item.Params.AmountSpecified),
			Index:     uint64(o.Index),
			Reason:    string(o.Reason),
			RunID:     runID,
			Timestamp: now,
		})
	}

	h.emit(ctx, domain.Event{
		Kind:      domain.EventBatchExecuted,
		PoolID:    p.ID,
		Price:     domain.CopyU256(ref),
		Executed:  rep.Executed,
		Failed:    rep.Failed,
		RunID:     runID,
		Timestamp: now,
	})

	h.log.Infof("Batch executed, pool=%s run=%s executed=%d failed=%d remaining=%d",
		p.ID.Hex(), runID, rep.Executed, rep.Failed, p.Book.Len())
}
