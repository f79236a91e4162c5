package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"swapguard/internal/config"
	"swapguard/internal/dedupe"
	"swapguard/internal/domain"
	"swapguard/internal/hook"
	"swapguard/internal/logtest"
	"swapguard/internal/metrics"
	"swapguard/internal/poolengine"
	rdstore "swapguard/internal/stores/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x0a")

	key = domain.PoolKey{
		Currency0:   common.HexToAddress("0x1000"),
		Currency1:   common.HexToAddress("0x2000"),
		Fee:         3000,
		TickSpacing: 60,
		Hooks:       common.HexToAddress("0xcc"),
	}

	priceOne = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
)

// ========== Test Helpers ==========

type fixture struct {
	svc     *HookService
	sim     *poolengine.Simulated
	store   *rdstore.SnapshotStore
	metrics *metrics.HookMetrics
	mr      *miniredis.Miniredis
}

func newSnapshotStore(t *testing.T, mr *miniredis.Miniredis) *rdstore.SnapshotStore {
	t.Helper()
	rdb := &rdstore.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := rdstore.NewSnapshotStore(logtest.New(), rdb, "")
	require.NoError(t, err)
	return store
}

func newFixture(t *testing.T, mr *miniredis.Miniredis) *fixture {
	t.Helper()
	sim := poolengine.NewSimulated(0)
	h, err := hook.New(logtest.New(), &config.HookConfig{Owner: owner.Hex()}, sim)
	require.NoError(t, err)

	f := &fixture{sim: sim, store: newSnapshotStore(t, mr), metrics: metrics.New("test", nil), mr: mr}
	f.svc, err = NewHookService(logtest.New(), h, Deps{
		Deduper:   dedupe.NewMemory(logtest.New(), 0, 0),
		Snapshots: f.store,
		Observer:  f.metrics,
		Prices:    sim,
	})
	require.NoError(t, err)
	return f
}

func notification(id string, kind domain.NotificationKind, price *uint256.Int) domain.Notification {
	return domain.Notification{EventID: id, Kind: kind, PoolKey: key, SqrtPriceX96: price}
}

func (f *fixture) historyLen() int {
	var n int
	f.svc.View(func(h *hook.Hook) { n = len(h.PriceHistory(key.ID(), 1000)) })
	return n
}

func (f *fixture) result(r string) float64 {
	return testutil.ToFloat64(f.metrics.Notifications.WithLabelValues(r))
}

type checker struct{ err error }

func (c checker) Health(context.Context) error { return c.err }

// ========== Constructor Tests ==========

func TestNewHookService(t *testing.T) {
	h, err := hook.New(logtest.New(), &config.HookConfig{Owner: owner.Hex()}, poolengine.NewSimulated(0))
	require.NoError(t, err)

	_, err = NewHookService(logtest.New(), nil, Deps{Deduper: dedupe.NewMemory(logtest.New(), 0, 0)})
	assert.Error(t, err)

	_, err = NewHookService(logtest.New(), h, Deps{})
	assert.Error(t, err)

	svc, err := NewHookService(logtest.New(), h, Deps{Deduper: dedupe.NewMemory(logtest.New(), 0, 0)})
	require.NoError(t, err)
	assert.NoError(t, svc.Restore(context.Background()), "no snapshot store means cold start")
}

// ========== Notification Tests ==========

func TestHandleNotification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, miniredis.RunT(t))

	require.NoError(t, f.svc.HandleNotification(ctx, notification("1:0xaa:0", domain.NotificationInitialized, priceOne)))
	require.NoError(t, f.svc.HandleNotification(ctx, notification("1:0xaa:1", domain.NotificationSwapped, uint256.NewInt(1_000_000))))
	assert.Equal(t, 2, f.historyLen())

	ref, err := f.sim.CurrentReferencePrice(ctx, key.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), ref.Uint64(), "engine follows the notified price")

	// replay is dropped
	require.NoError(t, f.svc.HandleNotification(ctx, notification("1:0xaa:1", domain.NotificationSwapped, uint256.NewInt(7))))
	assert.Equal(t, 2, f.historyLen())

	assert.Equal(t, float64(2), f.result(ResultOK))
	assert.Equal(t, float64(1), f.result(ResultDuplicate))

	data, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.SnapshotSaves.WithLabelValues("ok")))
}

func TestHandleNotification_Invalid(t *testing.T) {
	f := newFixture(t, miniredis.RunT(t))

	tests := []struct {
		name string
		n    domain.Notification
	}{
		{name: "bad id", n: notification("nope", domain.NotificationSwapped, priceOne)},
		{name: "unknown kind", n: notification("1:0xaa:0", "burned", priceOne)},
		{name: "zero price", n: notification("1:0xaa:0", domain.NotificationSwapped, uint256.NewInt(0))},
		{name: "nil price", n: notification("1:0xaa:0", domain.NotificationSwapped, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.HandleNotification(context.Background(), tt.n)
			assert.ErrorIs(t, err, ErrInvalidNotification)
		})
	}
	assert.Equal(t, float64(len(tests)), f.result(ResultInvalid))
	assert.Equal(t, 0, f.historyLen())
}

func TestHandleNotification_HookError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, miniredis.RunT(t))

	require.NoError(t, f.svc.HandleNotification(ctx, notification("1:0xaa:0", domain.NotificationInitialized, priceOne)))
	err := f.svc.HandleNotification(ctx, notification("1:0xbb:0", domain.NotificationInitialized, uint256.NewInt(5)))
	assert.ErrorIs(t, err, hook.ErrPoolAlreadyInitialized)
	assert.Equal(t, float64(1), f.result(ResultError))

	ref, err := f.sim.CurrentReferencePrice(ctx, key.ID())
	require.NoError(t, err)
	assert.Equal(t, priceOne.Dec(), ref.Dec(), "rejected notification leaves the engine price")
	assert.Equal(t, 1, f.historyLen())
}

func TestHandleMessage(t *testing.T) {
	f := newFixture(t, miniredis.RunT(t))

	n := notification("1:0xaa:0", "", priceOne)
	data, err := json.Marshal(n)
	require.NoError(t, err)

	f.svc.HandleMessage(context.Background(), "hook.in.initialized", data)
	assert.Equal(t, 1, f.historyLen())

	f.svc.HandleMessage(context.Background(), "hook.in.swapped", []byte("{not json"))
	assert.Equal(t, float64(1), f.result(ResultInvalid))
	assert.Equal(t, 1, f.historyLen())
}

func TestHandleNotification_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, miniredis.RunT(t))
	require.NoError(t, f.svc.HandleNotification(ctx, notification("1:0x00:0", domain.NotificationInitialized, priceOne)))

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("1:0x%02x:%d", i, i)
			assert.NoError(t, f.svc.HandleNotification(ctx, notification(id, domain.NotificationSwapped, uint256.NewInt(uint64(1_000+i)))))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 21, f.historyLen())
}

// ========== Snapshot Tests ==========

func TestRestore_WarmStart(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	first := newFixture(t, mr)
	require.NoError(t, first.svc.HandleNotification(ctx, notification("1:0xaa:0", domain.NotificationInitialized, priceOne)))
	require.NoError(t, first.svc.HandleNotification(ctx, notification("1:0xaa:1", domain.NotificationSwapped, uint256.NewInt(5_000))))

	second := newFixture(t, mr)
	require.NoError(t, second.svc.Restore(ctx))
	assert.Equal(t, 2, second.historyLen())

	ref, err := second.sim.CurrentReferencePrice(ctx, key.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), ref.Uint64())

	var pools []domain.PoolID
	second.svc.View(func(h *hook.Hook) { pools = h.Pools() })
	assert.Equal(t, []domain.PoolID{key.ID()}, pools)
}

func TestRestore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("cold start", func(t *testing.T) {
		f := newFixture(t, miniredis.RunT(t))
		assert.NoError(t, f.svc.Restore(ctx))
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		mr := miniredis.RunT(t)
		f := newFixture(t, mr)
		require.NoError(t, mr.Set(rdstore.DefaultSnapshotKey, "garbage"))
		assert.Error(t, f.svc.Restore(ctx))
	})

	t.Run("redis down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		f := newFixture(t, mr)
		mr.Close()
		assert.Error(t, f.svc.Restore(ctx))
	})
}

func TestUpdate_FailedCallDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, miniredis.RunT(t))

	boom := errors.New("boom")
	err := f.svc.Update(ctx, func(*hook.Hook) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, err = f.store.Load(ctx)
	assert.ErrorIs(t, err, rdstore.ErrNoSnapshot)
}

func TestUpdate_SnapshotFailureIsReported(t *testing.T) {
	mr := miniredis.RunT(t)
	f := newFixture(t, mr)
	mr.Close()

	err := f.svc.Update(context.Background(), func(h *hook.Hook) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SnapshotSaves.WithLabelValues("error")))
}

// ========== Dependency Tests ==========

func TestCheckDependency(t *testing.T) {
	h, err := hook.New(logtest.New(), &config.HookConfig{Owner: owner.Hex()}, poolengine.NewSimulated(0))
	require.NoError(t, err)

	healthy, err := NewHookService(logtest.New(), h, Deps{
		Deduper: dedupe.NewMemory(logtest.New(), 0, 0),
		Health:  map[string]HealthChecker{"redis": checker{}, "nats": checker{}},
	})
	require.NoError(t, err)
	assert.NoError(t, healthy.CheckDependency(context.Background()))

	broken, err := NewHookService(logtest.New(), h, Deps{
		Deduper: dedupe.NewMemory(logtest.New(), 0, 0),
		Health: map[string]HealthChecker{
			"redis":      checker{err: errors.New("connection refused")},
			"nats":       checker{},
			"clickhouse": checker{err: errors.New("timeout")},
		},
	})
	require.NoError(t, err)
	err = broken.CheckDependency(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clickhouse: timeout; redis: connection refused")
}
