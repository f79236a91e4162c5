package http

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"swapguard/internal/api/http/handlers"
	"swapguard/internal/api/http/mw"
	"swapguard/internal/commitreveal"
	"swapguard/internal/config"
	"swapguard/internal/dedupe"
	"swapguard/internal/domain"
	"swapguard/internal/hook"
	"swapguard/internal/logtest"
	"swapguard/internal/poolengine"
	"swapguard/internal/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x0a")
	executor = common.HexToAddress("0x0e")
	alice    = common.HexToAddress("0xa1")

	key = domain.PoolKey{
		Currency0:   common.HexToAddress("0x1000"),
		Currency1:   common.HexToAddress("0x2000"),
		Fee:         3000,
		TickSpacing: 60,
		Hooks:       common.HexToAddress("0xcc"),
	}
	poolID   = key.ID()
	priceOne = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
)

// ========== Test Helpers ==========

type apiEnv struct {
	router nethttp.Handler
	now    uint64
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	e := &apiEnv{now: 1_700_000_000}

	sim := poolengine.NewSimulated(0)
	h, err := hook.New(logtest.New(), &config.HookConfig{Owner: owner.Hex(), Executors: []string{executor.Hex()}}, sim,
		hook.WithClock(func() uint64 { return e.now }))
	require.NoError(t, err)

	svc, err := service.NewHookService(logtest.New(), h, service.Deps{
		Deduper: dedupe.NewMemory(logtest.New(), 0, 0),
		Prices:  sim,
	})
	require.NoError(t, err)
	require.NoError(t, svc.HandleNotification(context.Background(), domain.Notification{
		EventID: "1:0xaa:0", Kind: domain.NotificationInitialized, PoolKey: key, SqrtPriceX96: priceOne,
	}))

	e.router = BuildRouter(handlers.NewHandler(logtest.New(), svc), nil, Middlewares{
		Logging: mw.NewLogging(logtest.New(), nil),
		Auth:    mw.NewHeaderIdentity(""),
	})
	return e
}

func (e *apiEnv) do(t *testing.T, method, path string, as common.Address, body any) (int, envelope) {
	t.Helper()
	return e.doCtx(t, context.Background(), method, path, as, body)
}

func (e *apiEnv) doCtx(t *testing.T, ctx context.Context, method, path string, as common.Address, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequestWithContext(ctx, method, path, &buf)
	if as != (common.Address{}) {
		req.Header.Set(mw.DefaultAccountHeader, as.Hex())
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func queueBody(amount int64) map[string]any {
	return map[string]any{
		"pool_id": poolID.Hex(),
		"params":  map[string]any{"zero_for_one": true, "amount_specified": amount},
	}
}

// ========== Tech Endpoint Tests ==========

func TestRouter_Health(t *testing.T) {
	e := newAPIEnv(t)

	code, _ := e.do(t, nethttp.MethodGet, "/healthz", common.Address{}, nil)
	assert.Equal(t, nethttp.StatusOK, code)

	code, env := e.do(t, nethttp.MethodGet, "/readiness", common.Address{}, nil)
	assert.Equal(t, nethttp.StatusOK, code)
	assert.JSONEq(t, `{"dependencies":"healthy"}`, string(env.Data))
}

// ========== Queue And Batch Tests ==========

func TestRouter_QueueAndExecute(t *testing.T) {
	e := newAPIEnv(t)

	code, env := e.do(t, nethttp.MethodPost, "/api/pools/swaps", common.Address{}, queueBody(-1000))
	assert.Equal(t, nethttp.StatusUnauthorized, code)
	assert.Equal(t, "unauthenticated", env.Error.Code)

	code, env = e.do(t, nethttp.MethodPost, "/api/pools/swaps", alice, queueBody(0))
	assert.Equal(t, nethttp.StatusBadRequest, code)
	assert.Equal(t, "invalid_amount", env.Error.Code)

	code, env = e.do(t, nethttp.MethodPost, "/api/pools/swaps", alice, queueBody(-1000))
	require.Equal(t, nethttp.StatusCreated, code)
	var rcpt struct {
		Index            int  `json:"index"`
		BatchInitialized bool `json:"batch_initialized"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rcpt))
	assert.Equal(t, 0, rcpt.Index)
	assert.True(t, rcpt.BatchInitialized)

	code, env = e.do(t, nethttp.MethodGet, "/api/pools/"+poolID.Hex()+"/pending/"+alice.Hex(), alice, nil)
	assert.Equal(t, nethttp.StatusOK, code)
	assert.JSONEq(t, `{"pending":1}`, string(env.Data))

	code, env = e.do(t, nethttp.MethodPost, "/api/pools/batch/execute", alice, map[string]any{"pool_id": poolID.Hex()})
	assert.Equal(t, nethttp.StatusForbidden, code)
	assert.Equal(t, "unauthorized_executor", env.Error.Code)

	code, env = e.do(t, nethttp.MethodPost, "/api/pools/batch/execute", executor, map[string]any{"pool_id": poolID.Hex()})
	assert.Equal(t, nethttp.StatusConflict, code)
	assert.Equal(t, "batch_not_ready", env.Error.Code)

	e.now += 180
	code, env = e.do(t, nethttp.MethodPost, "/api/pools/batch/execute", executor, map[string]any{"pool_id": poolID.Hex()})
	require.Equal(t, nethttp.StatusOK, code)
	var rep struct {
		Executed uint64 `json:"executed"`
		Outcomes []struct {
			Status string `json:"status"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, uint64(1), rep.Executed)
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, "executed", rep.Outcomes[0].Status)

	code, env = e.do(t, nethttp.MethodGet, "/api/pools/"+poolID.Hex()+"/batch", alice, nil)
	require.Equal(t, nethttp.StatusOK, code)
	var bs struct {
		BatchCount    uint64 `json:"batch_count"`
		TotalExecuted uint64 `json:"total_executed"`
		QueueLength   int    `json:"queue_length"`
		BatchActive   bool   `json:"batch_active"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bs))
	assert.Equal(t, uint64(1), bs.BatchCount)
	assert.Equal(t, uint64(1), bs.TotalExecuted)
	assert.Equal(t, 0, bs.QueueLength)
	assert.False(t, bs.BatchActive)

	code, env = e.do(t, nethttp.MethodPost, "/api/pools/batch/emergency", executor, map[string]any{"pool_id": poolID.Hex()})
	assert.Equal(t, nethttp.StatusConflict, code)
	assert.Equal(t, "empty_queue", env.Error.Code)
}

func TestRouter_BatchRunSurvivesClientDisconnect(t *testing.T) {
	e := newAPIEnv(t)

	for i := 0; i < 3; i++ {
		code, _ := e.do(t, nethttp.MethodPost, "/api/pools/swaps", alice, queueBody(-1000))
		require.Equal(t, nethttp.StatusCreated, code)
	}
	e.now += 180

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, env := e.doCtx(t, ctx, nethttp.MethodPost, "/api/pools/batch/execute", executor, map[string]any{"pool_id": poolID.Hex()})
	require.Equal(t, nethttp.StatusOK, code)

	var rep struct {
		Executed uint64 `json:"executed"`
		Failed   uint64 `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, uint64(3), rep.Executed, "a started pass is not cut short")
	assert.Zero(t, rep.Failed)

	code, env = e.do(t, nethttp.MethodGet, "/api/pools/"+poolID.Hex()+"/batch", alice, nil)
	require.Equal(t, nethttp.StatusOK, code)
	var bs struct {
		QueueLength int  `json:"queue_length"`
		BatchActive bool `json:"batch_active"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bs))
	assert.Equal(t, 0, bs.QueueLength)
	assert.False(t, bs.BatchActive)
}

// ========== View Tests ==========

func TestRouter_Views(t *testing.T) {
	e := newAPIEnv(t)

	code, env := e.do(t, nethttp.MethodGet, "/api/pools", alice, nil)
	require.Equal(t, nethttp.StatusOK, code)
	var pools []struct {
		ID common.Hash `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pools))
	require.Len(t, pools, 1)
	assert.Equal(t, poolID, pools[0].ID)

	code, env = e.do(t, nethttp.MethodGet, "/api/pools/"+poolID.Hex()+"/history?limit=10", alice, nil)
	require.Equal(t, nethttp.StatusOK, code)
	var samples []domain.PriceSample
	require.NoError(t, json.Unmarshal(env.Data, &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, priceOne, samples[0].Price)

	code, env = e.do(t, nethttp.MethodGet, "/api/pools/"+poolID.Hex()+"/volatility", alice, nil)
	require.Equal(t, nethttp.StatusOK, code)
	var vol struct {
		Volatility       uint64 `json:"volatility"`
		AdjustedSlippage uint64 `json:"adjusted_slippage"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &vol))
	assert.Equal(t, uint64(0), vol.Volatility)
	assert.Equal(t, uint64(10), vol.AdjustedSlippage, "floor below the minimum sample count")

	code, env = e.do(t, nethttp.MethodGet, "/api/pools/"+poolID.Hex()+"/queue", alice, nil)
	assert.Equal(t, nethttp.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantErr  string
	}{
		{name: "bad pool id", path: "/api/pools/0x12/history", wantCode: nethttp.StatusBadRequest, wantErr: "bad_request"},
		{name: "bad limit", path: "/api/pools/" + poolID.Hex() + "/history?limit=-1", wantCode: nethttp.StatusBadRequest, wantErr: "bad_request"},
		{name: "queue page out of range", path: "/api/pools/" + poolID.Hex() + "/queue?start=3", wantCode: nethttp.StatusBadRequest, wantErr: "index_out_of_bounds"},
		{name: "bad account", path: "/api/pools/" + poolID.Hex() + "/pending/bob", wantCode: nethttp.StatusBadRequest, wantErr: "bad_request"},
		{name: "unknown reveal", path: "/api/pools/" + poolID.Hex() + "/reveals/" + common.HexToHash("0x01").Hex(), wantCode: nethttp.StatusNotFound, wantErr: "commitment_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := e.do(t, nethttp.MethodGet, tt.path, alice, nil)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}
}

// ========== Commit-Reveal Tests ==========

func TestRouter_CommitFlow(t *testing.T) {
	e := newAPIEnv(t)
	pool := map[string]any{"pool_id": poolID.Hex()}

	code, env := e.do(t, nethttp.MethodPost, "/api/pools/commit-phase", alice, pool)
	assert.Equal(t, nethttp.StatusForbidden, code)
	assert.Equal(t, "unauthorized_executor", env.Error.Code)

	code, _ = e.do(t, nethttp.MethodPost, "/api/pools/commit-phase", executor, pool)
	require.Equal(t, nethttp.StatusOK, code)

	swap := domain.RevealedSwap{
		Committer: alice,
		Params:    domain.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-500)},
		Salt:      common.HexToHash("0x5a17"),
	}
	want, err := commitreveal.Hash(swap)
	require.NoError(t, err)

	code, env = e.do(t, nethttp.MethodPost, "/api/pools/commit-hash", alice, swap)
	require.Equal(t, nethttp.StatusOK, code)
	assert.JSONEq(t, `{"hash":"`+want.Hex()+`"}`, string(env.Data))

	commit := map[string]any{"pool_id": poolID.Hex(), "hash": want.Hex()}
	code, env = e.do(t, nethttp.MethodPost, "/api/pools/commits", alice, commit)
	require.Equal(t, nethttp.StatusCreated, code)
	assert.JSONEq(t, `{"index":0}`, string(env.Data))

	code, env = e.do(t, nethttp.MethodPost, "/api/pools/commits", alice, commit)
	assert.Equal(t, nethttp.StatusConflict, code)
	assert.Equal(t, "duplicate_commitment", env.Error.Code)

	code, env = e.do(t, nethttp.MethodGet, "/api/pools/"+poolID.Hex()+"/commitments/"+alice.Hex(), alice, nil)
	require.Equal(t, nethttp.StatusOK, code)
	var view struct {
		Count       int                 `json:"count"`
		Commitments []domain.Commitment `json:"commitments"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 1, view.Count)
	require.Len(t, view.Commitments, 1)
	assert.Equal(t, want, view.Commitments[0].Hash)

	code, env = e.do(t, nethttp.MethodPost, "/api/pools/reveal-phase", executor, pool)
	assert.Equal(t, nethttp.StatusConflict, code)
	assert.Equal(t, "commit_phase_not_ended", env.Error.Code)
}

// ========== Admin Tests ==========

func TestRouter_Admin(t *testing.T) {
	e := newAPIEnv(t)
	bob := common.HexToAddress("0xb0")

	code, env := e.do(t, nethttp.MethodPost, "/api/admin/executors", alice, map[string]any{"executor": bob.Hex(), "allowed": true})
	assert.Equal(t, nethttp.StatusForbidden, code)
	assert.Equal(t, "not_owner", env.Error.Code)

	code, _ = e.do(t, nethttp.MethodPost, "/api/admin/executors", owner, map[string]any{"executor": bob.Hex(), "allowed": true})
	assert.Equal(t, nethttp.StatusOK, code)

	code, env = e.do(t, nethttp.MethodPost, "/api/admin/owner", owner, map[string]any{"new_owner": common.Address{}.Hex()})
	assert.Equal(t, nethttp.StatusBadRequest, code)
	assert.Equal(t, "zero_address", env.Error.Code)

	code, _ = e.do(t, nethttp.MethodPost, "/api/admin/owner", owner, map[string]any{"new_owner": alice.Hex()})
	assert.Equal(t, nethttp.StatusOK, code)

	code, env = e.do(t, nethttp.MethodGet, "/api/admin/roles", alice, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.JSONEq(t, `{"owner":"`+alice.Hex()+`"}`, string(env.Data))

	code, env = e.do(t, nethttp.MethodPost, "/api/admin/owner", owner, map[string]any{"new_owner": alice.Hex(), "extra": 1})
	assert.Equal(t, nethttp.StatusBadRequest, code)
	assert.Equal(t, "bad_request", env.Error.Code)
}
