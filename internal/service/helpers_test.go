package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testSecret      = "0123456789abcdef0123456789abcdef"
	testPIN         = "1234"
	testPassword    = "s3cret-pass"
	testMaxAttempts = 3
)

var testRecipient = json.RawMessage(`{"name":"Bob","account":"12345678"}`)

type testEnv struct {
	store     *repository.MemoryStore
	hasher    *auth.Hasher
	tokens    *auth.TokenIssuer
	sessions  *auth.MemorySessionStore
	limiter   *auth.MemoryPinLimiter
	audit     *AuditService
	auth      *AuthService
	accounts  *AccountService
	transfers *TransferService
	ledger    *LedgerService
	recon     *ReconciliationService
	admin     models.Account
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	hasher := auth.NewHasher(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	tokens, err := auth.NewTokenIssuer(testSecret, "retail-banking", "retail-banking-api", time.Hour)
	require.NoError(t, err)
	sessions := auth.NewMemorySessionStore(time.Hour)
	limiter := auth.NewMemoryPinLimiter(testMaxAttempts, time.Minute)
	audit := NewAuditService(store)

	env := &testEnv{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		sessions:  sessions,
		limiter:   limiter,
		audit:     audit,
		auth:      NewAuthService(store, hasher, tokens, sessions),
		accounts:  NewAccountService(store, hasher, audit),
		transfers: NewTransferService(store, hasher, limiter, audit),
		ledger:    NewLedgerService(store, audit),
		recon:     NewReconciliationService(store),
	}

	admin, err := env.accounts.EnsureAdmin(context.Background(), BootstrapAdminInput{
		Username: "root",
		Email:    "root@bank.test",
		Password: testPassword,
		PIN:      "9999",
	})
	require.NoError(t, err)
	env.admin = *admin
	return env
}

// newAccount creates an active user account holding balance.
func (e *testEnv) newAccount(t *testing.T, username, balance string) models.Account {
	t.Helper()
	account, err := e.accounts.AdminCreate(context.Background(), e.admin.ID, AdminCreateInput{
		Username: username,
		Email:    username + "@bank.test",
		Password: testPassword,
		PIN:      testPIN,
		Balance:  balance,
	})
	require.NoError(t, err)
	return *account
}

func (e *testEnv) balance(t *testing.T, id uuid.UUID) domain.Money {
	t.Helper()
	account, err := e.accounts.Get(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func (e *testEnv) history(t *testing.T, id uuid.UUID) []models.Transaction {
	t.Helper()
	txs, err := e.ledger.ListForAccount(context.Background(), id)
	require.NoError(t, err)
	return txs
}

func (e *testEnv) transfer(accountID uuid.UUID, amount, pin string) (*models.Transaction, error) {
	return e.transfers.InitiateTransfer(context.Background(), TransferRequest{
		AccountID:     accountID,
		Amount:        amount,
		TransferType:  domain.MethodWire,
		RecipientInfo: testRecipient,
		Memo:          "rent",
		PIN:           pin,
	})
}

func mustMoney(t *testing.T, s string) domain.Money {
	t.Helper()
	m, err := domain.ParseMoney(s)
	require.NoError(t, err)
	return m
}
