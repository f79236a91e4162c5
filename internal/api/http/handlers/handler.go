package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"swapguard/internal/access"
	"swapguard/internal/api/http/mw"
	"swapguard/internal/commitreveal"
	"swapguard/internal/domain"
	"swapguard/internal/hook"
	"swapguard/internal/poolengine"
	"swapguard/internal/queue"
	"swapguard/internal/service"
	"swapguard/pkg/httputil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"gitlab.com/nevasik7/alerting/logger"
)

type Handler struct {
	Log     logger.Logger
	Service *service.HookService
}

func NewHandler(log logger.Logger, svc *service.HookService) *Handler {
	if svc == nil {
		panic("hook service cannot be nil")
	}

	return &Handler{Log: log, Service: svc}
}

var errUnauthenticated = errors.New("caller account is unknown")

// errorMapping ties hook sentinel errors to a status and a stable error code
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{access.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{access.ErrUnauthorized, http.StatusForbidden, "unauthorized_executor"},
	{hook.ErrProofInvalid, http.StatusForbidden, "proof_invalid"},
	{access.ErrReentrantCall, http.StatusConflict, "reentrant_call"},
	{access.ErrZeroAddress, http.StatusBadRequest, "zero_address"},
	{hook.ErrPoolNotFound, http.StatusNotFound, "pool_not_found"},
	{hook.ErrPoolAlreadyInitialized, http.StatusConflict, "pool_already_initialized"},
	{hook.ErrSlippageTooLow, http.StatusUnprocessableEntity, "slippage_too_low"},
	{hook.ErrSlippageTooHigh, http.StatusUnprocessableEntity, "slippage_too_high"},
	{hook.ErrBatchNotReady, http.StatusConflict, "batch_not_ready"},
	{hook.ErrEmptyQueue, http.StatusConflict, "empty_queue"},
	{hook.ErrZeroPrice, http.StatusBadGateway, "zero_price"},
	{queue.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{queue.ErrInvalidPriceBounds, http.StatusBadRequest, "invalid_price_bounds"},
	{queue.ErrIndexOutOfBounds, http.StatusBadRequest, "index_out_of_bounds"},
	{queue.ErrReferencePrice, http.StatusBadGateway, "reference_price_unavailable"},
	{poolengine.ErrUnknownPool, http.StatusBadGateway, "reference_price_unavailable"},
	{commitreveal.ErrPhaseActive, http.StatusConflict, "phase_active"},
	{commitreveal.ErrCommitPhaseInactive, http.StatusConflict, "commit_phase_inactive"},
	{commitreveal.ErrCommitPhaseEnded, http.StatusConflict, "commit_phase_ended"},
	{commitreveal.ErrCommitPhaseNotEnded, http.StatusConflict, "commit_phase_not_ended"},
	{commitreveal.ErrRevealPhaseInactive, http.StatusConflict, "reveal_phase_inactive"},
	{commitreveal.ErrRevealPhaseEnded, http.StatusConflict, "reveal_phase_ended"},
	{commitreveal.ErrRevealPhaseNotEnded, http.StatusConflict, "reveal_phase_not_ended"},
	{commitreveal.ErrZeroCommitment, http.StatusBadRequest, "zero_commitment"},
	{commitreveal.ErrInvalidPreimage, http.StatusBadRequest, "invalid_preimage"},
	{commitreveal.ErrDuplicateCommitment, http.StatusConflict, "duplicate_commitment"},
	{commitreveal.ErrCommitmentNotFound, http.StatusNotFound, "commitment_not_found"},
	{commitreveal.ErrAlreadyRevealed, http.StatusConflict, "already_revealed"},
	{commitreveal.ErrRevealTooEarly, http.StatusConflict, "reveal_too_early"},
	{commitreveal.ErrStaleCommitment, http.StatusConflict, "stale_commitment"},
	{errUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
}

// fail writes err as an API error; unknown errors are logged and reported as 500
func (a *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := http.StatusInternalServerError, "internal", "internal error"

	var apiErr *httputil.APIError
	if errors.As(err, &apiErr) {
		status, code, msg = http.StatusBadRequest, apiErr.Code, apiErr.Message
	} else {
		for _, m := range errorMapping {
			if errors.Is(err, m.err) {
				status, code, msg = m.status, m.code, err.Error()
				break
			}
		}
	}

	if status == http.StatusInternalServerError {
		a.Log.Errorf("Handler error, path=%s, error=%v", r.URL.Path, err)
	}
	if err = httputil.Error(w, r, status, code, msg, nil); err != nil {
		a.Log.Errorf("Failed to write error response: %v", err)
	}
}

func (a *Handler) ok(w http.ResponseWriter, status int, body any) {
	if err := httputil.JSON(w, status, body, nil); err != nil {
		a.Log.Errorf("Failed to write response: %v", err)
	}
}

func badRequest(msg string) error {
	return &httputil.APIError{Code: "bad_request", Message: msg}
}

// caller is the authenticated account behind the request
func caller(r *http.Request) (common.Address, error) {
	sub := mw.Subject(r.Context())
	if sub == "" || !common.IsHexAddress(sub) {
		return common.Address{}, errUnauthenticated
	}
	return common.HexToAddress(sub), nil
}

func poolParam(r *http.Request) (domain.PoolID, error) {
	id, err := domain.ParsePoolID(chi.URLParam(r, "pool"))
	if err != nil {
		return domain.PoolID{}, badRequest(err.Error())
	}
	return id, nil
}

// intQuery reads a non-negative integer query value, def when absent
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("query " + name + " must be a non-negative integer")
	}
	return v, nil
}
