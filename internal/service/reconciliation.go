package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService checks that every balance equals its opening balance
// plus the signed sum of its ledger. It only reports; it never repairs.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// ReconciliationReport is the outcome of one run.
type ReconciliationReport struct {
	Checked int64                 `json:"checked"`
	Drifted []models.BalanceDrift `json:"drifted"`
	RanAt   time.Time             `json:"ran_at"`
}

func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	queries := s.store.Queries()
	checked, err := queries.CountAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	drifts, err := queries.GetBalanceDrifts(ctx)
	if err != nil {
		return nil, fmt.Errorf("run balance drift query: %w", err)
	}

	observability.RecordLedgerDrift(len(drifts))
	for _, d := range drifts {
		zap.L().Error("CRITICAL: balance drift detected",
			zap.String("account_id", d.AccountID.String()),
			zap.String("username", d.Username),
			zap.String("balance", d.Balance.String()),
			zap.String("ledger_balance", d.LedgerBalance.String()),
			zap.String("drift", d.Drift.String()))
	}
	if len(drifts) == 0 {
		zap.L().Info("ledger balanced", zap.Int64("accounts", checked))
	}

	return &ReconciliationReport{Checked: checked, Drifted: drifts, RanAt: time.Now().UTC()}, nil
}
