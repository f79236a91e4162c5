package handlers

import (
	"net/http"

	"swapguard/internal/hook"
	"swapguard/pkg/httputil"

	"github.com/ethereum/go-ethereum/common"
)

type rolesView struct {
	Owner common.Address `json:"owner"`
}

type executorRequest struct {
	Executor common.Address `json:"executor"`
	Allowed  bool           `json:"allowed"`
}

func (a *Handler) SetExecutor(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req executorRequest
	if err = httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	err = a.Service.Update(r.Context(), func(h *hook.Hook) error {
		return h.SetExecutor(r.Context(), from, req.Executor, req.Allowed)
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusOK, req)
}

type ownerRequest struct {
	NewOwner common.Address `json:"new_owner"`
}

func (a *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req ownerRequest
	if err = httputil.DecodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	err = a.Service.Update(r.Context(), func(h *hook.Hook) error {
		return h.TransferOwnership(r.Context(), from, req.NewOwner)
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, http.StatusOK, rolesView{Owner: req.NewOwner})
}

func (a *Handler) Roles(w http.ResponseWriter, _ *http.Request) {
	var v rolesView
	a.Service.View(func(h *hook.Hook) { v.Owner = h.Owner() })
	a.ok(w, http.StatusOK, v)
}
