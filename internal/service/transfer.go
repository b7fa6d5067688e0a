package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/observability"
	"github.com/ayo6706/retail-banking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransferService moves money out of accounts and records admin adjustments.
type TransferService struct {
	store   QueryStore
	hasher  *auth.Hasher
	limiter auth.PinLimiter
	audit   *AuditService
	now     func() time.Time
}

func NewTransferService(store QueryStore, hasher *auth.Hasher, limiter auth.PinLimiter, audit *AuditService) *TransferService {
	return &TransferService{
		store:   store,
		hasher:  hasher,
		limiter: limiter,
		audit:   audit,
		now:     time.Now,
	}
}

// TransferRequest is a user-initiated outgoing transfer confirmed by PIN.
// Amount is the decimal text as received, e.g. "40.00".
type TransferRequest struct {
	AccountID     uuid.UUID
	Amount        string
	TransferType  string
	RecipientInfo json.RawMessage
	Memo          string
	PIN           string
}

type validTransfer struct {
	amount    domain.Money
	method    string
	recipient json.RawMessage
	memo      *string
}

func validateTransfer(req TransferRequest) (validTransfer, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return validTransfer{}, err
	}
	method := strings.ToLower(strings.TrimSpace(req.TransferType))
	if method == "" {
		return validTransfer{}, invalid("transfer_type is required")
	}
	if !domain.IsValidTransferMethod(method) {
		return validTransfer{}, invalid("transfer_type must be one of direct, wire, bank, card, p2p")
	}
	recipient, err := validateRecipientInfo(req.RecipientInfo, true)
	if err != nil {
		return validTransfer{}, err
	}
	memo, err := validateMemo(req.Memo)
	if err != nil {
		return validTransfer{}, err
	}
	if strings.TrimSpace(req.PIN) == "" {
		return validTransfer{}, invalid("pin is required")
	}
	return validTransfer{amount: amount, method: method, recipient: recipient, memo: memo}, nil
}

// InitiateTransfer validates the request, checks the PIN once, then locks,
// debits and records inside one store transaction. Nothing is written unless
// every step succeeds.
func (s *TransferService) InitiateTransfer(ctx context.Context, req TransferRequest) (tx *models.Transaction, err error) {
	flow := newTransferFlow(req.AccountID)
	defer func() { flow.finish(err) }()

	in, err := validateTransfer(req)
	if err != nil {
		flow.fail(transferRejected)
		return nil, err
	}
	if err := flow.advance(transferPinPending); err != nil {
		return nil, err
	}

	if err := s.confirmPIN(ctx, req.AccountID, req.PIN); err != nil {
		switch {
		case errors.Is(err, ErrInvalidPin), errors.Is(err, ErrPinLocked), errors.Is(err, ErrAccountInactive):
			flow.fail(transferDeclined)
		case errors.Is(err, ErrAccountNotFound):
			flow.fail(transferRejected)
		}
		return nil, err
	}
	if err := flow.advance(transferVerified); err != nil {
		return nil, err
	}

	var created models.Transaction
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		account, err := q.GetAccountForUpdate(ctx, req.AccountID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		if account.Balance < in.amount {
			return models.ErrInsufficientFunds
		}

		if _, err := q.ApplyBalanceDelta(ctx, account.ID, -in.amount); err != nil {
			if errors.Is(err, models.ErrInsufficientFunds) {
				return err
			}
			return fmt.Errorf("debit account: %w", err)
		}
		if err := flow.advance(transferDebited); err != nil {
			return err
		}

		receipt, err := allocateReceipt(ctx, q)
		if err != nil {
			return fmt.Errorf("allocate receipt: %w", err)
		}
		method := in.method
		created, err = q.InsertTransaction(ctx, repository.InsertTransactionParams{
			ID:             uuid.New(),
			ReceiptNo:      receipt,
			AccountID:      account.ID,
			Type:           domain.TxTypeTransfer,
			Amount:         in.amount,
			TransferMethod: &method,
			RecipientInfo:  in.recipient,
			Memo:           in.memo,
			CreatedAt:      s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}
		return flow.advance(transferRecorded)
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientFunds):
			flow.fail(transferDeclined)
		case errors.Is(err, ErrAccountNotFound):
			flow.fail(transferRejected)
		}
		return nil, err
	}
	if err := flow.advance(transferComplete); err != nil {
		return nil, err
	}
	return &created, nil
}

// confirmPIN performs the single PIN verification of a transfer.
func (s *TransferService) confirmPIN(ctx context.Context, accountID uuid.UUID, pin string) error {
	locked, err := s.limiter.Locked(ctx, accountID)
	if err != nil {
		return fmt.Errorf("check pin limiter: %w", err)
	}
	if locked {
		observability.IncrementPinFailure("locked")
		return ErrPinLocked
	}

	account, err := s.store.Queries().GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive() {
		return ErrAccountInactive
	}

	if !s.hasher.VerifyPIN(pin, account.PINHash) {
		observability.IncrementPinFailure("mismatch")
		attempts, err := s.limiter.RecordFailure(ctx, accountID)
		if err != nil {
			zap.L().Error("record pin failure", zap.Error(err), zap.String("account_id", accountID.String()))
		} else {
			zap.L().Warn("pin mismatch", zap.String("account_id", accountID.String()), zap.Int("attempts", attempts))
		}
		return ErrInvalidPin
	}

	if err := s.limiter.Reset(ctx, accountID); err != nil {
		zap.L().Warn("reset pin limiter", zap.Error(err), zap.String("account_id", accountID.String()))
	}
	return nil
}

// AdminTransactionRequest records a deposit, withdrawal or transfer on any
// account without a PIN. A zero Timestamp means now.
type AdminTransactionRequest struct {
	AccountID     uuid.UUID
	Type          string
	Amount        string
	RecipientInfo json.RawMessage
	Memo          string
	Timestamp     time.Time
	CreatedBy     uuid.UUID
}

// AdminTransactionResult carries the created row and a human-readable summary.
type AdminTransactionResult struct {
	Transaction models.Transaction `json:"transaction"`
	Message     string             `json:"message"`
}

func (s *TransferService) AdminCreateTransaction(ctx context.Context, req AdminTransactionRequest) (*AdminTransactionResult, error) {
	txType := strings.ToLower(strings.TrimSpace(req.Type))
	if !domain.IsValidTxType(txType) {
		return nil, invalid("type must be one of deposit, withdrawal, transfer")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	recipient, err := validateRecipientInfo(req.RecipientInfo, false)
	if err != nil {
		return nil, err
	}
	memo, err := validateMemo(req.Memo)
	if err != nil {
		return nil, err
	}
	createdAt := req.Timestamp.UTC()
	if req.Timestamp.IsZero() {
		createdAt = s.now().UTC()
	}

	var created models.Transaction
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		account, err := q.GetAccountForUpdate(ctx, req.AccountID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}

		balance, err := q.ApplyBalanceDelta(ctx, account.ID, domain.SignedAmount(txType, amount))
		if err != nil {
			if errors.Is(err, models.ErrInsufficientFunds) {
				return err
			}
			if errors.Is(err, models.ErrBalanceOverflow) {
				return invalid("resulting balance is out of range")
			}
			return fmt.Errorf("apply balance delta: %w", err)
		}

		receipt, err := allocateReceipt(ctx, q)
		if err != nil {
			return fmt.Errorf("allocate receipt: %w", err)
		}
		createdBy := req.CreatedBy
		created, err = q.InsertTransaction(ctx, repository.InsertTransactionParams{
			ID:            uuid.New(),
			ReceiptNo:     receipt,
			AccountID:     account.ID,
			Type:          txType,
			Amount:        amount,
			RecipientInfo: recipient,
			Memo:          memo,
			CreatedBy:     &createdBy,
			CreatedAt:     createdAt,
		})
		if err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		return s.audit.Write(ctx, q, auditEntityTransaction, created.ID, &createdBy, "admin_create", "", txType, map[string]any{
			"account_id":     account.ID.String(),
			"amount":         amount.String(),
			"receipt_no":     receipt,
			"balance_before": account.Balance.String(),
			"balance_after":  balance.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("admin transaction recorded",
		zap.String("transaction_id", created.ID.String()),
		zap.String("account_id", created.AccountID.String()),
		zap.String("type", txType),
		zap.String("amount", amount.String()))
	return &AdminTransactionResult{
		Transaction: created,
		Message:     fmt.Sprintf("%s of %s recorded", txType, amount.String()),
	}, nil
}
