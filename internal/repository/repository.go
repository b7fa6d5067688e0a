package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/google/uuid"
)

// Querier is the data access contract shared by the Postgres and in-memory stores.
// Lookups that match nothing return models.ErrNotFound; unique violations are
// reported as the matching models.ErrDuplicate* sentinel.
type Querier interface {
	CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	CountAccounts(ctx context.Context) (int64, error)
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, status string) (models.Account, error)
	// ApplyBalanceDelta adds delta to the balance only if the result stays
	// non-negative, returning models.ErrInsufficientFunds otherwise.
	ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta domain.Money) (domain.Money, error)
	SetAuthToken(ctx context.Context, id uuid.UUID, tokenHash *string) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	SetAvatar(ctx context.Context, id uuid.UUID, avatar *string) (models.Account, error)
	SetTheme(ctx context.Context, id uuid.UUID, theme string) (models.Account, error)

	InsertTransaction(ctx context.Context, arg InsertTransactionParams) (models.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	ReceiptExists(ctx context.Context, receiptNo string) (bool, error)
	IsReversed(ctx context.Context, id uuid.UUID) (bool, error)
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) (int64, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (models.AuditEntry, error)
	ListAuditLogByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AuditEntry, error)

	GetBalanceDrifts(ctx context.Context) ([]models.BalanceDrift, error)
}

type CreateAccountParams struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	PINHash      string
	Balance      domain.Money
	Role         string
	Status       string
	Theme        string
}

type InsertTransactionParams struct {
	ID             uuid.UUID
	ReceiptNo      string
	AccountID      uuid.UUID
	Type           string
	Amount         domain.Money
	TransferMethod *string
	RecipientInfo  json.RawMessage
	Memo           *string
	CreatedBy      *uuid.UUID
	ReversesID     *uuid.UUID
	CreatedAt      time.Time
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}
