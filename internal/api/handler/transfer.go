package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/service"
)

type TransferHandler struct {
	transfers *service.TransferService
	ledger    *service.LedgerService
}

func NewTransferHandler(transfers *service.TransferService, ledger *service.LedgerService) *TransferHandler {
	return &TransferHandler{transfers: transfers, ledger: ledger}
}

type transferRequest struct {
	Amount        json.RawMessage `json:"amount"`
	TransferType  string          `json:"transfer_type"`
	RecipientInfo json.RawMessage `json:"recipient_info"`
	Memo          string          `json:"memo"`
	PIN           string          `json:"pin"`
}

// CreateTransfer debits the caller's account after PIN confirmation.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestAccount(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.transfers.InitiateTransfer(r.Context(), service.TransferRequest{
		AccountID:     caller.ID,
		Amount:        amountText(req.Amount),
		TransferType:  req.TransferType,
		RecipientInfo: req.RecipientInfo,
		Memo:          req.Memo,
		PIN:           req.PIN,
	})
	if err != nil {
		writeServiceError(w, r, err, "initiate transfer")
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]*models.Transaction{"transaction": tx})
}

// ListOwn returns the caller's ledger, newest first.
func (h *TransferHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestAccount(w, r)
	if !ok {
		return
	}
	txs, err := h.ledger.ListForAccount(r.Context(), caller.ID)
	if err != nil {
		writeServiceError(w, r, err, "list transactions")
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	RespondJSON(w, http.StatusOK, txs)
}
