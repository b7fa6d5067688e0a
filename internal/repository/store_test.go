package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/retail-banking/internal/db"
	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/repository"
	"github.com/ayo6706/retail-banking/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}

var testPool *pgxpool.Pool

// TestMain runs every store test against the in-memory store and, when
// DATABASE_URL is set, against Postgres as well.
func TestMain(m *testing.M) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		os.Exit(m.Run())
	}

	release := dblock.Acquire()
	ctx := context.Background()
	pool, err := db.Connect(ctx, connStr, db.PoolOptions{MaxConns: 8})
	if err != nil {
		release()
		fmt.Printf("Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		release()
		fmt.Printf("Unable to migrate database: %v\n", err)
		os.Exit(1)
	}
	testPool = pool

	code := m.Run()
	pool.Close()
	release()
	os.Exit(code)
}

func forEachStore(t *testing.T, fn func(t *testing.T, store txStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, repository.NewMemoryStore())
	})
	if testPool == nil {
		return
	}
	t.Run("postgres", func(t *testing.T) {
		_, err := testPool.Exec(context.Background(), "TRUNCATE TABLE audit_log, transactions, accounts CASCADE")
		require.NoError(t, err)
		fn(t, repository.NewStore(testPool))
	})
}

func createAccount(t *testing.T, q repository.Querier, username string, balance domain.Money) models.Account {
	t.Helper()
	account, err := q.CreateAccount(context.Background(), repository.CreateAccountParams{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@bank.test",
		PasswordHash: "hash",
		PINHash:      "pin-hash",
		Balance:      balance,
		Role:         domain.RoleUser,
		Status:       domain.StatusActive,
		Theme:        domain.ThemeLight,
	})
	require.NoError(t, err)
	return account
}

func insertTx(t *testing.T, q repository.Querier, accountID uuid.UUID, receipt, txType string, amount domain.Money, at time.Time) models.Transaction {
	t.Helper()
	tx, err := q.InsertTransaction(context.Background(), repository.InsertTransactionParams{
		ID:            uuid.New(),
		ReceiptNo:     receipt,
		AccountID:     accountID,
		Type:          txType,
		Amount:        amount,
		RecipientInfo: json.RawMessage(`{"name":"Bob"}`),
		CreatedAt:     at,
	})
	require.NoError(t, err)
	return tx
}

func TestStore_AccountUniqueness(t *testing.T) {
	forEachStore(t, func(t *testing.T, store txStore) {
		ctx := context.Background()
		q := store.Queries()
		alice := createAccount(t, q, "alice", 0)

		assert.Equal(t, domain.StatusActive, alice.Status)
		assert.Equal(t, domain.ThemeLight, alice.Theme)

		_, err := q.CreateAccount(ctx, repository.CreateAccountParams{
			ID: uuid.New(), Username: "alice", Email: "other@bank.test", PasswordHash: "h", PINHash: "p",
			Role: domain.RoleUser, Status: domain.StatusActive, Theme: domain.ThemeLight,
		})
		require.ErrorIs(t, err, models.ErrDuplicateUsername)

		_, err = q.CreateAccount(ctx, repository.CreateAccountParams{
			ID: uuid.New(), Username: "alice2", Email: "ALICE@bank.test", PasswordHash: "h", PINHash: "p",
			Role: domain.RoleUser, Status: domain.StatusActive, Theme: domain.ThemeLight,
		})
		require.ErrorIs(t, err, models.ErrDuplicateEmail)

		byName, err := q.GetAccountByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byName.ID)

		_, err = q.GetAccount(ctx, uuid.New())
		require.ErrorIs(t, err, models.ErrNotFound)

		count, err := q.CountAccounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestStore_AccountMutations(t *testing.T) {
	forEachStore(t, func(t *testing.T, store txStore) {
		ctx := context.Background()
		q := store.Queries()
		alice := createAccount(t, q, "alice", 0)

		digest := "digest"
		require.NoError(t, q.SetAuthToken(ctx, alice.ID, &digest))
		now := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, q.TouchLastLogin(ctx, alice.ID, now))

		got, err := q.GetAccount(ctx, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, got.AuthTokenHash)
		assert.Equal(t, digest, *got.AuthTokenHash)
		require.NotNil(t, got.LastLoginAt)
		assert.True(t, now.Equal(*got.LastLoginAt))

		updated, err := q.UpdateAccountStatus(ctx, alice.ID, domain.StatusInactive)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInactive, updated.Status)

		avatar := "https://cdn.bank.test/a.png"
		updated, err = q.SetAvatar(ctx, alice.ID, &avatar)
		require.NoError(t, err)
		require.NotNil(t, updated.Avatar)
		updated, err = q.SetTheme(ctx, alice.ID, domain.ThemeDark)
		require.NoError(t, err)
		assert.Equal(t, domain.ThemeDark, updated.Theme)

		require.NoError(t, q.SetAuthToken(ctx, alice.ID, nil))
		got, err = q.GetAccount(ctx, alice.ID)
		require.NoError(t, err)
		assert.Nil(t, got.AuthTokenHash)

		_, err = q.UpdateAccountStatus(ctx, uuid.New(), domain.StatusActive)
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStore_ApplyBalanceDelta(t *testing.T) {
	forEachStore(t, func(t *testing.T, store txStore) {
		ctx := context.Background()
		q := store.Queries()
		alice := createAccount(t, q, "alice", 10000)

		balance, err := q.ApplyBalanceDelta(ctx, alice.ID, -4000)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(6000), balance)

		_, err = q.ApplyBalanceDelta(ctx, alice.ID, -7000)
		require.ErrorIs(t, err, models.ErrInsufficientFunds)

		balance, err = q.ApplyBalanceDelta(ctx, alice.ID, -6000)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(0), balance)
	})
}

func TestStore_ApplyBalanceDeltaOverflow(t *testing.T) {
	forEachStore(t, func(t *testing.T, store txStore) {
		ctx := context.Background()
		q := store.Queries()
		rich := createAccount(t, q, "rich", domain.Money(math.MaxInt64-100))

		_, err := q.ApplyBalanceDelta(ctx, rich.ID, 101)
		require.ErrorIs(t, err, models.ErrBalanceOverflow)

		got, err := q.GetAccount(ctx, rich.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(math.MaxInt64-100), got.Balance)

		balance, err := q.ApplyBalanceDelta(ctx, rich.ID, 100)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(math.MaxInt64), balance)
	})
}

func TestStore_RunInTxRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, store txStore) {
		ctx := context.Background()
		alice := createAccount(t, store.Queries(), "alice", 10000)
		boom := errors.New("boom")

		err := store.RunInTx(ctx, func(q repository.Querier) error {
			if _, err := q.ApplyBalanceDelta(ctx, alice.ID, -4000); err != nil {
				return err
			}
			insertTx(t, q, alice.ID, "1000001", domain.TxTypeTransfer, 4000, time.Now().UTC())
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.Queries().GetAccount(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(10000), got.Balance)
		txs, err := store.Queries().ListTransactionsByAccount(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, txs)
		exists, err := store.Queries().ReceiptExists(ctx, "1000001")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestStore_TransactionOrderingAndFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, store txStore) {
		ctx := context.Background()
		q := store.Queries()
		alice := createAccount(t, q, "alice", 0)
		bob := createAccount(t, q, "bob", 0)

		day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
		older := insertTx(t, q, alice.ID, "2000001", domain.TxTypeDeposit, 100, day.Add(-48*time.Hour))
		first := insertTx(t, q, alice.ID, "2000002", domain.TxTypeDeposit, 200, day)
		second := insertTx(t, q, alice.ID, "2000003", domain.TxTypeDeposit, 300, day)
		bobs := insertTx(t, q, bob.ID, "2000004", domain.TxTypeDeposit, 400, day)
		// Rows sharing a timestamp come back in reverse insertion order.

		txs, err := q.ListTransactionsByAccount(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, []uuid.UUID{second.ID, first.ID, older.ID}, []uuid.UUID{txs[0].ID, txs[1].ID, txs[2].ID})

		start := day
		end := day
		beforeDay := day.Add(-time.Hour)
		cases := []struct {
			name   string
			filter models.TransactionFilter
			want   []uuid.UUID
		}{
			{name: "all", filter: models.TransactionFilter{}, want: []uuid.UUID{bobs.ID, second.ID, first.ID, older.ID}},
			{name: "account", filter: models.TransactionFilter{AccountID: &bob.ID}, want: []uuid.UUID{bobs.ID}},
			{name: "inclusive bounds", filter: models.TransactionFilter{AccountID: &alice.ID, StartDate: &start, EndDate: &end}, want: []uuid.UUID{second.ID, first.ID}},
			{name: "end bound", filter: models.TransactionFilter{EndDate: &beforeDay}, want: []uuid.UUID{older.ID}},
		}
		for _, tc := range cases {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				got, err := q.ListTransactions(ctx, tc.filter)
				require.NoError(t, err)
				ids := make([]uuid.UUID, 0, len(got))
				for _, tx := range got {
					ids = append(ids, tx.ID)
				}
				assert.Equal(t, tc.want, ids)
			})
		}
	})
}

func TestStore_ReceiptsAndReversals(t *testing.T) {
	forEachStore(t, func(t *testing.T, store txStore) {
		ctx := context.Background()
		q := store.Queries()
		alice := createAccount(t, q, "alice", 10000)
		now := time.Now().UTC()
		original := insertTx(t, q, alice.ID, "3000001", domain.TxTypeTransfer, 500, now)

		_, err := q.InsertTransaction(ctx, repository.InsertTransactionParams{
			ID: uuid.New(), ReceiptNo: "3000001", AccountID: alice.ID, Type: domain.TxTypeDeposit, Amount: 1, CreatedAt: now,
		})
		require.ErrorIs(t, err, models.ErrDuplicateReceipt)

		exists, err := q.ReceiptExists(ctx, "3000001")
		require.NoError(t, err)
		assert.True(t, exists)

		reversal, err := q.InsertTransaction(ctx, repository.InsertTransactionParams{
			ID: uuid.New(), ReceiptNo: "3000002", AccountID: alice.ID, Type: domain.TxTypeDeposit, Amount: 500,
			ReversesID: &original.ID, CreatedAt: now,
		})
		require.NoError(t, err)
		reversed, err := q.IsReversed(ctx, original.ID)
		require.NoError(t, err)
		assert.True(t, reversed)

		_, err = q.InsertTransaction(ctx, repository.InsertTransactionParams{
			ID: uuid.New(), ReceiptNo: "3000003", AccountID: alice.ID, Type: domain.TxTypeDeposit, Amount: 500,
			ReversesID: &original.ID, CreatedAt: now,
		})
		require.ErrorIs(t, err, models.ErrAlreadyReversed)

		rows, err := q.DeleteTransaction(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)
		rows, err = q.DeleteTransaction(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rows)

		got, err := q.GetTransaction(ctx, reversal.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ReversesID)
		_, err = q.GetTransaction(ctx, original.ID)
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStore_AuditAndDrift(t *testing.T) {
	forEachStore(t, func(t *testing.T, store txStore) {
		ctx := context.Background()
		q := store.Queries()
		alice := createAccount(t, q, "alice", 10000)
		createAccount(t, q, "bob", 500)

		drifts, err := q.GetBalanceDrifts(ctx)
		require.NoError(t, err)
		assert.Empty(t, drifts)

		// A ledger row without a matching balance change.
		insertTx(t, q, alice.ID, "4000001", domain.TxTypeDeposit, 1000, time.Now().UTC())
		drifts, err = q.GetBalanceDrifts(ctx)
		require.NoError(t, err)
		require.Len(t, drifts, 1)
		assert.Equal(t, alice.ID, drifts[0].AccountID)
		assert.Equal(t, domain.Money(10000), drifts[0].Balance)
		assert.Equal(t, domain.Money(11000), drifts[0].LedgerBalance)
		assert.Equal(t, domain.Money(-1000), drifts[0].Drift)

		for _, action := range []string{"admin_create", "status_change"} {
			_, err := q.InsertAuditLog(ctx, repository.InsertAuditLogParams{
				EntityType: "account",
				EntityID:   alice.ID,
				Action:     action,
				Metadata:   []byte(`{"source":"test"}`),
			})
			require.NoError(t, err)
		}
		entries, err := q.ListAuditLogByEntity(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "admin_create", entries[0].Action)
		assert.Equal(t, "status_change", entries[1].Action)
		assert.JSONEq(t, `{"source":"test"}`, string(entries[0].Metadata))
	})
}
