package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the Postgres implementation of Querier.
type Queries struct {
	db DBTX
}

var _ Querier = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of the query set bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const accountColumns = `id, username, email, password_hash, pin_hash, balance, opening_balance, role, status,
	last_login_at, auth_token_hash, theme, avatar, created_at, updated_at`

const transactionColumns = `id, receipt_no, account_id, type, amount, transfer_method, recipient_info, memo,
	created_by, reverses_id, created_at`

func scanAccount(row pgx.Row) (models.Account, error) {
	var a models.Account
	var balance, opening int64
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.PINHash, &balance, &opening, &a.Role, &a.Status,
		&a.LastLoginAt, &a.AuthTokenHash, &a.Theme, &a.Avatar, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return models.Account{}, mapError(err)
	}
	a.Balance = domain.Money(balance)
	a.OpeningBalance = domain.Money(opening)
	return a, nil
}

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	var amount int64
	var recipient []byte
	var createdBy, reverses pgtype.UUID
	err := row.Scan(
		&t.ID, &t.ReceiptNo, &t.AccountID, &t.Type, &amount, &t.TransferMethod, &recipient, &t.Memo,
		&createdBy, &reverses, &t.CreatedAt,
	)
	if err != nil {
		return models.Transaction{}, mapError(err)
	}
	t.Amount = domain.Money(amount)
	if len(recipient) > 0 {
		t.RecipientInfo = recipient
	}
	t.CreatedBy = fromNullableUUID(createdBy)
	t.ReversesID = fromNullableUUID(reverses)
	return t, nil
}

func collectAccounts(rows pgx.Rows) ([]models.Account, error) {
	defer rows.Close()
	accounts := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// mapError translates driver errors into the models sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		switch pgErr.ConstraintName {
		case "accounts_username_key":
			return models.ErrDuplicateUsername
		case "accounts_email_key":
			return models.ErrDuplicateEmail
		case "transactions_receipt_no_key":
			return models.ErrDuplicateReceipt
		case "transactions_reverses_id_key":
			return models.ErrAlreadyReversed
		}
	case "22003": // numeric_value_out_of_range
		return models.ErrBalanceOverflow
	case "23514": // check_violation
		if pgErr.ConstraintName == "accounts_balance_non_negative" {
			return models.ErrInsufficientFunds
		}
	}
	return err
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error) {
	query := `INSERT INTO accounts (id, username, email, password_hash, pin_hash, balance, opening_balance, role, status, theme, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9, NOW(), NOW())
		RETURNING ` + accountColumns
	return scanAccount(q.db.QueryRow(ctx, query,
		arg.ID, arg.Username, arg.Email, arg.PasswordHash, arg.PINHash, arg.Balance.Cents(), arg.Role, arg.Status, arg.Theme))
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetAccountByUsername(ctx context.Context, username string) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
}

func (q *Queries) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := q.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC, username`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return collectAccounts(rows)
}

func (q *Queries) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (q *Queries) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status string) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx,
		`UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+accountColumns, id, status))
}

func (q *Queries) ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta domain.Money) (domain.Money, error) {
	var balance int64
	err := q.db.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance`, id, delta.Cents()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrInsufficientFunds
		}
		return 0, mapError(err)
	}
	return domain.Money(balance), nil
}

func (q *Queries) SetAuthToken(ctx context.Context, id uuid.UUID, tokenHash *string) error {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET auth_token_hash = $2, updated_at = NOW() WHERE id = $1`, id, tokenHash)
	if err != nil {
		return fmt.Errorf("set auth token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (q *Queries) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (q *Queries) SetAvatar(ctx context.Context, id uuid.UUID, avatar *string) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx,
		`UPDATE accounts SET avatar = $2, updated_at = NOW() WHERE id = $1 RETURNING `+accountColumns, id, avatar))
}

func (q *Queries) SetTheme(ctx context.Context, id uuid.UUID, theme string) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx,
		`UPDATE accounts SET theme = $2, updated_at = NOW() WHERE id = $1 RETURNING `+accountColumns, id, theme))
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (models.Transaction, error) {
	var recipient []byte
	if len(arg.RecipientInfo) > 0 {
		recipient = arg.RecipientInfo
	}
	query := `INSERT INTO transactions (id, receipt_no, account_id, type, amount, transfer_method, recipient_info, memo, created_by, reverses_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + transactionColumns
	return scanTransaction(q.db.QueryRow(ctx, query,
		arg.ID, arg.ReceiptNo, arg.AccountID, arg.Type, arg.Amount.Cents(), arg.TransferMethod, recipient, arg.Memo,
		toNullableUUID(arg.CreatedBy), toNullableUUID(arg.ReversesID), arg.CreatedAt))
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (q *Queries) ReceiptExists(ctx context.Context, receiptNo string) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE receipt_no = $1)`, receiptNo).Scan(&exists); err != nil {
		return false, fmt.Errorf("check receipt: %w", err)
	}
	return exists, nil
}

func (q *Queries) IsReversed(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE reverses_id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check reversal: %w", err)
	}
	return exists, nil
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, seq DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (q *Queries) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		conds = append(conds, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, seq DESC`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (q *Queries) DeleteTransaction(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (models.AuditEntry, error) {
	var e models.AuditEntry
	var actor pgtype.UUID
	err := q.db.QueryRow(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at`,
		arg.EntityType, arg.EntityID, toNullableUUID(arg.ActorID), arg.Action, arg.PrevState, arg.NextState, arg.Metadata,
	).Scan(&e.ID, &e.EntityType, &e.EntityID, &actor, &e.Action, &e.PrevState, &e.NextState, &e.Metadata, &e.CreatedAt)
	if err != nil {
		return models.AuditEntry{}, mapError(err)
	}
	e.ActorID = fromNullableUUID(actor)
	return e, nil
}

func (q *Queries) ListAuditLogByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AuditEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at
		FROM audit_log
		WHERE entity_id = $1
		ORDER BY id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var actor pgtype.UUID
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &actor, &e.Action, &e.PrevState, &e.NextState, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActorID = fromNullableUUID(actor)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q *Queries) GetBalanceDrifts(ctx context.Context) ([]models.BalanceDrift, error) {
	rows, err := q.db.Query(ctx, `
		SELECT a.id, a.username, a.balance, l.ledger_balance
		FROM accounts a
		CROSS JOIN LATERAL (
			SELECT (a.opening_balance + COALESCE(SUM(CASE WHEN t.type = 'deposit' THEN t.amount ELSE -t.amount END), 0))::BIGINT AS ledger_balance
			FROM transactions t
			WHERE t.account_id = a.id
		) l
		WHERE a.balance <> l.ledger_balance
		ORDER BY a.username`)
	if err != nil {
		return nil, fmt.Errorf("query balance drift: %w", err)
	}
	defer rows.Close()

	drifts := []models.BalanceDrift{}
	for rows.Next() {
		var d models.BalanceDrift
		var balance, ledger int64
		if err := rows.Scan(&d.AccountID, &d.Username, &balance, &ledger); err != nil {
			return nil, fmt.Errorf("scan balance drift: %w", err)
		}
		d.Balance = domain.Money(balance)
		d.LedgerBalance = domain.Money(ledger)
		d.Drift = d.Balance - d.LedgerBalance
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}
