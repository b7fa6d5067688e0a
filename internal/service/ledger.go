package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService reads and administers the transaction ledger.
type LedgerService struct {
	store QueryStore
	audit *AuditService
	now   func() time.Time
}

func NewLedgerService(store QueryStore, audit *AuditService) *LedgerService {
	return &LedgerService{store: store, audit: audit, now: time.Now}
}

// ListForAccount returns the account's transactions, newest first.
func (s *LedgerService) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	txs, err := s.store.Queries().ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account transactions: %w", err)
	}
	return txs, nil
}

// ListAll applies the filter across every account, newest first.
func (s *LedgerService) ListAll(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, invalid("end_date must not be before start_date")
	}
	txs, err := s.store.Queries().ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *LedgerService) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	tx, err := s.store.Queries().GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &tx, nil
}

// Remove hard-deletes a transaction without touching the account balance.
// It reports false when no such transaction exists. The resulting drift is
// visible to reconciliation.
func (s *LedgerService) Remove(ctx context.Context, actorID, id uuid.UUID) (bool, error) {
	var removed bool
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		tx, err := q.GetTransaction(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		rows, err := q.DeleteTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "delete transaction"); err != nil {
			return err
		}
		removed = true
		return s.audit.Write(ctx, q, auditEntityTransaction, id, &actorID, "delete", tx.Type, "", map[string]any{
			"account_id": tx.AccountID.String(),
			"amount":     tx.Amount.String(),
			"receipt_no": tx.ReceiptNo,
		})
	})
	if err != nil {
		return false, err
	}
	if removed {
		zap.L().Warn("transaction deleted without balance adjustment",
			zap.String("transaction_id", id.String()),
			zap.String("actor_id", actorID.String()))
	}
	return removed, nil
}

func compensatingType(txType string) string {
	if txType == domain.TxTypeDeposit {
		return domain.TxTypeWithdrawal
	}
	return domain.TxTypeDeposit
}

// Reverse writes a compensating transaction and applies the opposite balance
// delta in one store transaction. Each transaction can be reversed once, and
// reversal rows cannot themselves be reversed.
func (s *LedgerService) Reverse(ctx context.Context, actorID, id uuid.UUID) (*AdminTransactionResult, error) {
	var (
		original models.Transaction
		created  models.Transaction
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		var err error
		original, err = q.GetTransaction(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		if original.ReversesID != nil {
			return invalid("a reversal cannot be reversed")
		}
		reversed, err := q.IsReversed(ctx, id)
		if err != nil {
			return fmt.Errorf("check reversal: %w", err)
		}
		if reversed {
			return models.ErrAlreadyReversed
		}

		if _, err := q.GetAccountForUpdate(ctx, original.AccountID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		reversalType := compensatingType(original.Type)
		if _, err := q.ApplyBalanceDelta(ctx, original.AccountID, domain.SignedAmount(reversalType, original.Amount)); err != nil {
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
		memo := fmt.Sprintf("reversal of #%s", original.ReceiptNo)
		originalID := original.ID
		created, err = q.InsertTransaction(ctx, repository.InsertTransactionParams{
			ID:         uuid.New(),
			ReceiptNo:  receipt,
			AccountID:  original.AccountID,
			Type:       reversalType,
			Amount:     original.Amount,
			Memo:       &memo,
			CreatedBy:  &actorID,
			ReversesID: &originalID,
			CreatedAt:  s.now().UTC(),
		})
		if err != nil {
			if errors.Is(err, models.ErrAlreadyReversed) {
				return err
			}
			return fmt.Errorf("record reversal: %w", err)
		}
		return s.audit.Write(ctx, q, auditEntityTransaction, original.ID, &actorID, "reverse", original.Type, reversalType, map[string]any{
			"reversal_id": created.ID.String(),
			"amount":      original.Amount.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("transaction reversed",
		zap.String("transaction_id", original.ID.String()),
		zap.String("reversal_id", created.ID.String()),
		zap.String("actor_id", actorID.String()))
	return &AdminTransactionResult{
		Transaction: created,
		Message:     fmt.Sprintf("reversal of #%s recorded", original.ReceiptNo),
	}, nil
}
