package handler

import (
	"net/http"

	"github.com/ayo6706/retail-banking/internal/service"
)

// UserHandler serves the caller's own profile under /v1/me.
type UserHandler struct {
	svc *service.AccountService
}

func NewUserHandler(svc *service.AccountService) *UserHandler {
	return &UserHandler{svc: svc}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestAccount(w, r)
	if !ok {
		return
	}
	account, err := h.svc.Get(r.Context(), caller.ID)
	if err != nil {
		writeServiceError(w, r, err, "load profile")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

func (h *UserHandler) UpdateTheme(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		Theme string `json:"theme"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.svc.SetTheme(r.Context(), caller.ID, req.Theme)
	if err != nil {
		writeServiceError(w, r, err, "update theme")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// UpdateAvatar sets the avatar reference; null or "" clears it.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		Avatar *string `json:"avatar"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	avatar := ""
	if req.Avatar != nil {
		avatar = *req.Avatar
	}

	account, err := h.svc.SetAvatar(r.Context(), caller.ID, avatar)
	if err != nil {
		writeServiceError(w, r, err, "update avatar")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}
