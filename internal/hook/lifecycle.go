package hook

import (
	"context"
	"fmt"
	"math/big"

	"swapguard/internal/avs"
	"swapguard/internal/domain"
	"swapguard/internal/queue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AfterInitialize seeds the price history and volatility state of a new pool
func (h *Hook) AfterInitialize(ctx context.Context, key domain.PoolKey, sqrtPriceX96 *uint256.Int) error {
	if !domain.IsSet(sqrtPriceX96) {
		return ErrZeroPrice
	}
	p := h.poolFor(key)
	if p.Initialized {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyInitialized, p.ID.Hex())
	}
	p.Initialized = true

	h.recordPrice(ctx, p, sqrtPriceX96)
	h.log.Infof("Pool initialized, pool=%s price=%s", p.ID.Hex(), sqrtPriceX96.Dec())
	return nil
}

// AfterSwap records the post-swap price and recomputes volatility and slippage
func (h *Hook) AfterSwap(ctx context.Context, key domain.PoolKey, sqrtPriceX96 *uint256.Int) error {
	if !domain.IsSet(sqrtPriceX96) {
		return ErrZeroPrice
	}
	h.recordPrice(ctx, h.poolFor(key), sqrtPriceX96)
	return nil
}

func (h *Hook) recordPrice(ctx context.Context, p *PoolState, price *uint256.Int) {
	now := h.now()
	sample := p.History.Record(price, now, h.historyCap)
	h.emit(ctx, domain.Event{Kind: domain.EventPriceRecorded, PoolID: p.ID, Price: sample.Price, Timestamp: now})

	vol, slippage := h.estimator.Refresh(&p.Volatility, &p.History, now)
	h.emit(ctx, domain.Event{
		Kind:       domain.EventSlippageCalculated,
		PoolID:     p.ID,
		Volatility: vol,
		Slippage:   slippage,
		Timestamp:  now,
	})
}

// BeforeSwap checks the swapper's hint against the pool's recommended slippage and,
// for batch hints, defers the swap into the queue instead of letting it proceed.
func (h *Hook) BeforeSwap(ctx context.Context, caller common.Address, key domain.PoolKey, params domain.SwapParams, hint domain.SwapHint) (domain.SwapDecision, error) {
	// an unseen pool is only registered once its first swap is actually queued
	p, known := h.state.Pools[key.ID()]
	if !known {
		p = &PoolState{ID: key.ID(), Key: key}
	}

	if err := domain.CheckSwapBounds(params, hint.MinAmountOut, hint.MaxPrice, hint.MinPrice); err != nil {
		return "", fmt.Errorf("%w: %w", queue.ErrInvalidAmount, err)
	}
	if err := h.checkProof(ctx, avs.ActionSwap, caller, p, &params, hint.Proof); err != nil {
		return "", err
	}

	if hint.MaxSlippageBps != 0 {
		recommended := h.estimator.AdjustedSlippage(&p.History, h.now())
		if hint.MaxSlippageBps < recommended {
			return "", fmt.Errorf("%w: max=%d recommended=%d", ErrSlippageTooLow, hint.MaxSlippageBps, recommended)
		}
		if ceiling := h.estimator.Params().CeilingBps; hint.MaxSlippageBps > ceiling {
			return "", fmt.Errorf("%w: max=%d ceiling=%d", ErrSlippageTooHigh, hint.MaxSlippageBps, ceiling)
		}
	}

	if !hint.Batch {
		return domain.DecisionProceed, nil
	}

	release, err := h.guard.Enter()
	if err != nil {
		return "", err
	}
	defer release()

	if _, err = h.enqueue(ctx, p, queue.Request{
		Account:      caller,
		Params:       params,
		MinAmountOut: hint.MinAmountOut,
		MaxPrice:     hint.MaxPrice,
		MinPrice:     hint.MinPrice,
		AuxData:      hint.AuxData,
	}); err != nil {
		return "", err
	}
	if !known {
		h.state.Pools[p.ID] = p
	}
	return domain.DecisionDeferred, nil
}

// QueueSwap enqueues a swap directly for a known pool
func (h *Hook) QueueSwap(ctx context.Context, caller common.Address, pool domain.PoolID, params domain.SwapParams, minAmountOut *big.Int, maxPrice, minPrice *uint256.Int, aux []byte) (queue.Receipt, error) {
	release, err := h.guard.Enter()
	if err != nil {
		return queue.Receipt{}, err
	}
	defer release()

	p, err := h.pool(pool)
	if err != nil {
		return queue.Receipt{}, err
	}

	return h.enqueue(ctx, p, queue.Request{
		Account:      caller,
		Params:       params,
		MinAmountOut: minAmountOut,
		MaxPrice:     maxPrice,
		MinPrice:     minPrice,
		AuxData:      aux,
	})
}

func (h *Hook) enqueue(ctx context.Context, p *PoolState, req queue.Request) (queue.Receipt, error) {
	now := h.now()
	rcpt, err := h.queue.Enqueue(ctx, p.ID, &p.Book, &p.Batch, req, now)
	if err != nil {
		return queue.Receipt{}, err
	}
	h.afterEnqueue(ctx, p, req, rcpt, now)
	return rcpt, nil
}

func (h *Hook) afterEnqueue(ctx context.Context, p *PoolState, req queue.Request, rcpt queue.Receipt, now uint64) {
	if rcpt.BatchInitialized {
		h.emit(ctx, domain.Event{Kind: domain.EventBatchInitialized, PoolID: p.ID, Price: rcpt.ReferencePrice, Timestamp: now})
	}
	h.emit(ctx, domain.Event{
		Kind:      domain.EventSwapQueued,
		PoolID:    p.ID,
		Account:   req.Account,
		Hash:      req.CommitmentHash,
		Amount:    domain.CopyBig(req.Params.AmountSpecified),
		Index:     uint64(rcpt.Index),
		Timestamp: now,
	})
}
