package hook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swapguard/internal/access"
	"swapguard/internal/avs"
	"swapguard/internal/batch"
	"swapguard/internal/commitreveal"
	"swapguard/internal/config"
	"swapguard/internal/domain"
	"swapguard/internal/events"
	"swapguard/internal/history"
	"swapguard/internal/poolengine"
	"swapguard/internal/queue"
	"swapguard/internal/volatility"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"
)

var (
	ErrPoolNotFound           = errors.New("pool not found")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrZeroPrice              = errors.New("price is zero")
	ErrSlippageTooLow         = errors.New("max slippage below recommended tolerance")
	ErrSlippageTooHigh        = errors.New("max slippage above ceiling")
	ErrProofInvalid           = errors.New("proof validation failed")
	ErrBatchNotReady          = errors.New("batch interval not elapsed")
	ErrEmptyQueue             = errors.New("queue is empty")
)

// Clock returns unix seconds
type Clock func() uint64

func SystemClock() uint64 { return uint64(time.Now().Unix()) }

// PoolState is everything the hook keeps for one pool
type PoolState struct {
	ID          domain.PoolID
	Key         domain.PoolKey
	Initialized bool
	History     history.Log
	Volatility  domain.VolatilityState
	Batch       domain.BatchState
	Book        queue.Book
	Round       commitreveal.Round
}

// State is the single top-level object owning all per-pool state
type State struct {
	Roles access.Roles
	Pools map[domain.PoolID]*PoolState
}

// Hook composes the price history, volatility, queue, batch and commit-reveal components
// behind the hook entry points. It is not safe for concurrent use; callers serialize access.
type Hook struct {
	log       logger.Logger
	clock     Clock
	engine    poolengine.Engine
	validator avs.Validator
	emitter   events.Emitter

	historyCap int
	estimator  *volatility.Estimator
	queue      *queue.Queue
	batch      *batch.Engine
	coord      *commitreveal.Coordinator

	guard access.Guard
	state State
}

type Option func(*Hook)

func WithClock(c Clock) Option {
	return func(h *Hook) { h.clock = c }
}

func WithValidator(v avs.Validator) Option {
	return func(h *Hook) { h.validator = v }
}

func WithEmitter(e events.Emitter) Option {
	return func(h *Hook) { h.emitter = e }
}

func New(log logger.Logger, cfg *config.HookConfig, engine poolengine.Engine, opts ...Option) (*Hook, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the hook")
	}
	if engine == nil {
		return nil, errors.New("pool engine is required to the hook")
	}
	if !common.IsHexAddress(cfg.Owner) {
		return nil, fmt.Errorf("hook owner must be a hex address, got %q", cfg.Owner)
	}

	executors := make([]common.Address, 0, len(cfg.Executors))
	for _, e := range cfg.Executors {
		if !common.IsHexAddress(e) {
			return nil, fmt.Errorf("executor must be a hex address, got %q", e)
		}
		executors = append(executors, common.HexToAddress(e))
	}

	historyCap := cfg.HistoryCap
	if historyCap <= 0 {
		historyCap = history.DefaultCapacity // sane defaults
	}

	h := &Hook{
		log:        log,
		clock:      SystemClock,
		engine:     engine,
		emitter:    events.Nop{},
		historyCap: historyCap,
		estimator: volatility.NewEstimator(volatility.Params{
			Window:     uint64(cfg.VolatilityWindow / time.Second),
			MinSamples: cfg.MinSamples,
			FloorBps:   cfg.MinSlippageBps,
			CeilingBps: cfg.MaxSlippageBps,
			Multiplier: cfg.VolatilityMultiplier,
		}),
		queue: queue.New(cfg.BatchInterval, engine),
		batch: batch.NewEngine(cfg.MaxBatchSize, engine),
		coord: commitreveal.NewCoordinator(cfg.CommitDuration, cfg.RevealDuration, cfg.MinRevealDelay),
		state: State{
			Roles: access.NewRoles(common.HexToAddress(cfg.Owner), executors...),
			Pools: make(map[domain.PoolID]*PoolState),
		},
	}
	for _, o := range opts {
		o(h)
	}

	return h, nil
}

func (h *Hook) Estimator() *volatility.Estimator { return h.estimator }

func (h *Hook) now() uint64 { return h.clock() }

func (h *Hook) emit(ctx context.Context, ev domain.Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = h.now()
	}
	h.emitter.Emit(ctx, ev)
}

// poolFor returns the pool state for key, creating it on first sight
func (h *Hook) poolFor(key domain.PoolKey) *PoolState {
	id := key.ID()
	p, ok := h.state.Pools[id]
	if !ok {
		p = &PoolState{ID: id, Key: key}
		h.state.Pools[id] = p
	}
	return p
}

func (h *Hook) pool(id domain.PoolID) (*PoolState, error) {
	p, ok := h.state.Pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id.Hex())
	}
	return p, nil
}

func (h *Hook) checkProof(ctx context.Context, action string, caller common.Address, p *PoolState, params *domain.SwapParams, proof []byte) error {
	if h.validator == nil {
		return nil
	}

	c := avs.Context{Action: action, Caller: caller, Pool: p.ID, Round: p.Batch.BatchCount}
	if params != nil {
		c.ZeroForOne = params.ZeroForOne
		c.Amount = params.AmountSpecified
	}

	ok, err := h.validator.Validate(ctx, c.Encode(), proof)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProofInvalid, err)
	}
	if !ok {
		return ErrProofInvalid
	}
	return nil
}

// ========== Owner operations ==========

func (h *Hook) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	if err := h.state.Roles.TransferOwnership(caller, newOwner); err != nil {
		return err
	}
	h.log.Infof("Ownership transferred, from=%s to=%s", caller.Hex(), newOwner.Hex())
	h.emit(ctx, domain.Event{Kind: domain.EventOwnershipTransferred, Account: newOwner})
	return nil
}

func (h *Hook) SetExecutor(ctx context.Context, caller, executor common.Address, allowed bool) error {
	if err := h.state.Roles.SetExecutor(caller, executor, allowed); err != nil {
		return err
	}
	h.log.Infof("Executor updated, executor=%s authorized=%t", executor.Hex(), allowed)
	h.emit(ctx, domain.Event{Kind: domain.EventExecutorAuthorized, Account: executor, Authorized: allowed})
	return nil
}
