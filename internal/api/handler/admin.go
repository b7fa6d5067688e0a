package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/service"
	"github.com/google/uuid"
)

// AdminHandler serves ledger maintenance, reconciliation and audit endpoints.
type AdminHandler struct {
	transfers *service.TransferService
	ledger    *service.LedgerService
	recon     *service.ReconciliationService
	audit     *service.AuditService
}

func NewAdminHandler(transfers *service.TransferService, ledger *service.LedgerService, recon *service.ReconciliationService, audit *service.AuditService) *AdminHandler {
	return &AdminHandler{transfers: transfers, ledger: ledger, recon: recon, audit: audit}
}

func (h *AdminHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		AccountID     string          `json:"account_id"`
		Type          string          `json:"type"`
		Amount        json.RawMessage `json:"amount"`
		RecipientInfo json.RawMessage `json:"recipient_info"`
		Memo          string          `json:"memo"`
		Timestamp     string          `json:"timestamp"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_id")
		return
	}
	var ts time.Time
	if req.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-timestamp", "timestamp must be RFC 3339")
			return
		}
	}

	result, err := h.transfers.AdminCreateTransaction(r.Context(), service.AdminTransactionRequest{
		AccountID:     accountID,
		Type:          req.Type,
		Amount:        amountText(req.Amount),
		RecipientInfo: req.RecipientInfo,
		Memo:          req.Memo,
		Timestamp:     ts,
		CreatedBy:     actor.ID,
	})
	if err != nil {
		writeServiceError(w, r, err, "create transaction")
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

func (h *AdminHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter models.TransactionFilter
	if raw := query.Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_id")
			return
		}
		filter.AccountID = &id
	}
	start, err := parseDateParam(query.Get("start_date"), false)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-start-date", "start_date must be RFC 3339 or YYYY-MM-DD")
		return
	}
	end, err := parseDateParam(query.Get("end_date"), true)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-end-date", "end_date must be RFC 3339 or YYYY-MM-DD")
		return
	}
	filter.StartDate = start
	filter.EndDate = end

	txs, err := h.ledger.ListAll(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err, "list transactions")
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	RespondJSON(w, http.StatusOK, txs)
}

// DeleteTransaction removes the row without adjusting the balance.
func (h *AdminHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	removed, err := h.ledger.Remove(r.Context(), actor.ID, id)
	if err != nil {
		writeServiceError(w, r, err, "delete transaction")
		return
	}
	if !removed {
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "Transaction not found")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *AdminHandler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	result, err := h.ledger.Reverse(r.Context(), actor.ID, id)
	if err != nil {
		writeServiceError(w, r, err, "reverse transaction")
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.recon.Run(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "run reconciliation")
		return
	}
	if report.Drifted == nil {
		report.Drifted = []models.BalanceDrift{}
	}
	RespondJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	entityID, ok := uuidParam(w, r, "entityID")
	if !ok {
		return
	}
	entries, err := h.audit.ListForEntity(r.Context(), entityID)
	if err != nil {
		writeServiceError(w, r, err, "list audit log")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	RespondJSON(w, http.StatusOK, entries)
}
