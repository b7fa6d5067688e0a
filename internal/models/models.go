package models

import (
	"encoding/json"
	"time"

	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/google/uuid"
)

// Account is a user or admin holding a balance and credentials.
type Account struct {
	ID             uuid.UUID    `json:"id"`
	Username       string       `json:"username"`
	Email          string       `json:"email"`
	PasswordHash   string       `json:"-"`
	PINHash        string       `json:"-"`
	Balance        domain.Money `json:"balance"`
	OpeningBalance domain.Money `json:"-"`
	Role           string       `json:"role"`
	Status         string       `json:"status"`
	LastLoginAt    *time.Time   `json:"last_login_at,omitempty"`
	AuthTokenHash  *string      `json:"-"`
	Theme          string       `json:"theme"`
	Avatar         *string      `json:"avatar,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// IsActive reports whether the account may authenticate and move money.
func (a *Account) IsActive() bool {
	return a.Status == domain.StatusActive
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// Transaction is an immutable ledger row.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	ReceiptNo      string          `json:"receipt_no"`
	AccountID      uuid.UUID       `json:"account_id"`
	Type           string          `json:"type"`
	Amount         domain.Money    `json:"amount"`
	TransferMethod *string         `json:"transfer_method,omitempty"`
	RecipientInfo  json.RawMessage `json:"recipient_info,omitempty"`
	Memo           *string         `json:"memo,omitempty"`
	CreatedBy      *uuid.UUID      `json:"created_by,omitempty"`
	ReversesID     *uuid.UUID      `json:"reverses_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransactionFilter narrows admin-wide ledger queries. Nil fields are ignored.
type TransactionFilter struct {
	AccountID *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
}

// Matches applies the filter as an AND of its set fields, with inclusive bounds.
func (f TransactionFilter) Matches(tx Transaction) bool {
	if f.AccountID != nil && tx.AccountID != *f.AccountID {
		return false
	}
	if f.StartDate != nil && tx.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && tx.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

// AuditEntry is an immutable record of a privileged mutation.
type AuditEntry struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	Action     string          `json:"action"`
	PrevState  *string         `json:"prev_state,omitempty"`
	NextState  *string         `json:"next_state,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BalanceDrift is one account whose stored balance disagrees with its ledger.
type BalanceDrift struct {
	AccountID     uuid.UUID    `json:"account_id"`
	Username      string       `json:"username"`
	Balance       domain.Money `json:"balance"`
	LedgerBalance domain.Money `json:"ledger_balance"`
	Drift         domain.Money `json:"drift"`
}
