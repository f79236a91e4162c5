package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"swapguard/internal/dedupe"
	"swapguard/internal/domain"
	"swapguard/internal/hook"
	rdstore "swapguard/internal/stores/redis"

	"github.com/holiman/uint256"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrInvalidNotification = errors.New("invalid notification")

// Notification results reported to the Observer
const (
	ResultOK        = "ok"
	ResultDuplicate = "duplicate"
	ResultInvalid   = "invalid"
	ResultError     = "error"
)

type SnapshotStore interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

type Observer interface {
	ObserveNotification(result string)
	ObserveSnapshot(err error)
}

// PriceSink receives the pool prices carried by host notifications; the simulated engine is one
type PriceSink interface {
	SetPrice(pool domain.PoolID, sqrtPriceX96 *uint256.Int)
}

type Deps struct {
	Deduper   dedupe.Deduper
	Snapshots SnapshotStore           // nil = no persistence
	Observer  Observer                // optional
	Prices    PriceSink               // optional
	Health    map[string]HealthChecker // name -> dependency checked by readiness
}

// HookService is the single entry for every caller of the hook (HTTP, NATS consumer, CLI).
// The hook itself is not safe for concurrent use, so all access goes through Update or View.
type HookService struct {
	log  logger.Logger
	deps Deps

	mu   sync.Mutex
	hook *hook.Hook
}

func NewHookService(log logger.Logger, h *hook.Hook, deps Deps) (*HookService, error) {
	if h == nil {
		return nil, errors.New("hook is required to the service")
	}
	if deps.Deduper == nil {
		return nil, errors.New("deduper is required to the service")
	}
	return &HookService{log: log, hook: h, deps: deps}, nil
}

// Update runs a mutating call under the service lock and persists a snapshot when it succeeds.
// A failed snapshot write is reported but does not fail the call: the in-memory state is authoritative.
func (s *HookService) Update(ctx context.Context, fn func(h *hook.Hook) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.hook); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

// View runs a read-only call under the service lock
func (s *HookService) View(fn func(h *hook.Hook)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.hook)
}

func (s *HookService) persist(ctx context.Context) {
	if s.deps.Snapshots == nil {
		return
	}

	data, err := s.hook.Snapshot()
	if err == nil {
		err = s.deps.Snapshots.Save(ctx, data)
	}
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveSnapshot(err)
	}
	if err != nil {
		s.log.Errorf("Failed to persist hook snapshot, error=%v", err)
	}
}

// Restore loads the last snapshot into the hook; a missing snapshot is a cold start
func (s *HookService) Restore(ctx context.Context) error {
	if s.deps.Snapshots == nil {
		return nil
	}

	data, err := s.deps.Snapshots.Load(ctx)
	if errors.Is(err, rdstore.ErrNoSnapshot) {
		s.log.Info("No hook snapshot found, starting cold")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.hook.Restore(data); err != nil {
		return err
	}

	// engine prices are not part of the snapshot; seed them from the latest samples
	if s.deps.Prices != nil {
		for _, id := range s.hook.Pools() {
			if last := s.hook.PriceHistory(id, 1); len(last) == 1 {
				s.deps.Prices.SetPrice(id, last[0].Price)
			}
		}
	}
	return nil
}

// HandleNotification applies one host notification at most once
func (s *HookService) HandleNotification(ctx context.Context, n domain.Notification) error {
	if err := validateNotification(n); err != nil {
		s.observe(ResultInvalid)
		return err
	}

	seen, err := s.deps.Deduper.Seen(ctx, n.EventID)
	if err != nil {
		s.observe(ResultError)
		return fmt.Errorf("dedupe check failed for %s: %w", n.EventID, err)
	}
	if seen {
		s.observe(ResultDuplicate)
		s.log.Debugf("Duplicate notification ignored, id=%s", n.EventID)
		return nil
	}

	pool := n.PoolKey.ID()
	err = s.Update(ctx, func(h *hook.Hook) error {
		var err error
		if n.Kind == domain.NotificationInitialized {
			err = h.AfterInitialize(ctx, n.PoolKey, n.SqrtPriceX96)
		} else {
			err = h.AfterSwap(ctx, n.PoolKey, n.SqrtPriceX96)
		}
		// the engine only follows prices the hook accepted
		if err == nil && s.deps.Prices != nil {
			s.deps.Prices.SetPrice(pool, n.SqrtPriceX96)
		}
		return err
	})
	if err != nil {
		s.observe(ResultError)
		return fmt.Errorf("failed to apply %s notification %s: %w", n.Kind, n.EventID, err)
	}

	s.observe(ResultOK)
	if n.Timestamp > 0 {
		s.log.Debugf("Notification applied, id=%s pool=%s lag=%ds", n.EventID, pool.Hex(), time.Now().Unix()-int64(n.Timestamp))
	}
	return nil
}

// HandleMessage is the NATS entry; the kind falls back to the last subject token
func (s *HookService) HandleMessage(ctx context.Context, subject string, data []byte) {
	var n domain.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		s.observe(ResultInvalid)
		s.log.Warnf("Failed to decode notification, subject=%s, error=%v", subject, err)
		return
	}
	if n.Kind == "" {
		n.Kind = domain.NotificationKind(subject[strings.LastIndex(subject, ".")+1:])
	}

	if err := s.HandleNotification(ctx, n); err != nil {
		s.log.Errorf("Failed to handle notification, subject=%s, error=%v", subject, err)
	}
}

func (s *HookService) observe(result string) {
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveNotification(result)
	}
}

func validateNotification(n domain.Notification) error {
	if !domain.ValidNotificationID(n.EventID) {
		return fmt.Errorf("%w: bad event id %q", ErrInvalidNotification, n.EventID)
	}
	switch n.Kind {
	case domain.NotificationInitialized, domain.NotificationSwapped:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidNotification, n.Kind)
	}
	if !domain.IsSet(n.SqrtPriceX96) {
		return fmt.Errorf("%w: %v", ErrInvalidNotification, hook.ErrZeroPrice)
	}
	return nil
}

func (s *HookService) CheckDependency(ctx context.Context) error {
	names := make([]string, 0, len(s.deps.Health))
	for name := range s.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	errDependency := make([]string, 0, len(names))
	for _, name := range names {
		if err := s.deps.Health[name].Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %s", strings.Join(errDependency, "; "))
	}

	s.log.Debugf("All dependency check passed")
	return nil
}
