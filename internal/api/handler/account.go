package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/service"
	"go.uber.org/zap"
)

// AccountHandler serves the admin account endpoints.
type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "list accounts")
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	RespondJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		Username string          `json:"username"`
		Email    string          `json:"email"`
		Password string          `json:"password"`
		PIN      string          `json:"pin"`
		Balance  json.RawMessage `json:"balance"`
		Role     string          `json:"role"`
		Status   string          `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.svc.AdminCreate(r.Context(), actor.ID, service.AdminCreateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		PIN:      req.PIN,
		Balance:  amountText(req.Balance),
		Role:     req.Role,
		Status:   req.Status,
	})
	if err != nil {
		writeServiceError(w, r, err, "create account")
		return
	}
	zap.L().Info("account created by admin",
		zap.String("account_id", account.ID.String()),
		zap.String("actor_id", actor.ID.String()))
	RespondJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.svc.SetStatus(r.Context(), actor.ID, accountID, req.Status)
	if err != nil {
		writeServiceError(w, r, err, "update account status")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}
