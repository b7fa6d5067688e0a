package repository

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/google/uuid"
)

// MemoryStore is a process-local Store used for development and tests.
// A single mutex serializes every transaction, so GetAccountForUpdate needs
// no separate row lock. Transactions run against a copy of the state that is
// swapped in only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memTx struct {
	seq int64
	tx  models.Transaction
}

type memState struct {
	accounts  map[uuid.UUID]models.Account
	usernames map[string]uuid.UUID
	emails    map[string]uuid.UUID
	txs       []memTx
	receipts  map[string]struct{}
	audit     []models.AuditEntry
	nextSeq   int64
	nextAudit int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		accounts:  map[uuid.UUID]models.Account{},
		usernames: map[string]uuid.UUID{},
		emails:    map[string]uuid.UUID{},
		receipts:  map[string]struct{}{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:  make(map[uuid.UUID]models.Account, len(s.accounts)),
		usernames: make(map[string]uuid.UUID, len(s.usernames)),
		emails:    make(map[string]uuid.UUID, len(s.emails)),
		txs:       append([]memTx(nil), s.txs...),
		receipts:  make(map[string]struct{}, len(s.receipts)),
		audit:     append([]models.AuditEntry(nil), s.audit...),
		nextSeq:   s.nextSeq,
		nextAudit: s.nextAudit,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.usernames {
		c.usernames[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k := range s.receipts {
		c.receipts[k] = struct{}{}
	}
	return c
}

// Queries returns a query set that locks the store for each call.
func (s *MemoryStore) Queries() Querier {
	return &memQueries{store: s}
}

// RunInTx executes fn against a private copy of the state and commits it on success.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memQueries{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// memQueries operates either on a transaction's private state or, when state
// is nil, on the store's committed state under its mutex.
type memQueries struct {
	store *MemoryStore
	state *memState
}

var _ Querier = (*memQueries)(nil)

func (q *memQueries) acquire() (*memState, func()) {
	if q.state != nil {
		return q.state, func() {}
	}
	q.store.mu.Lock()
	return q.store.state, q.store.mu.Unlock
}

// write runs fn on a copy of the committed state outside a transaction so
// that a failed write leaves nothing behind.
func (q *memQueries) write(fn func(st *memState) error) error {
	if q.state != nil {
		return fn(q.state)
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	work := q.store.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	q.store.state = work
	return nil
}

func (q *memQueries) CreateAccount(_ context.Context, arg CreateAccountParams) (models.Account, error) {
	var out models.Account
	err := q.write(func(st *memState) error {
		if _, ok := st.usernames[arg.Username]; ok {
			return models.ErrDuplicateUsername
		}
		email := strings.ToLower(arg.Email)
		if _, ok := st.emails[email]; ok {
			return models.ErrDuplicateEmail
		}
		if arg.Balance < 0 {
			return models.ErrInsufficientFunds
		}
		now := time.Now().UTC()
		out = models.Account{
			ID:             arg.ID,
			Username:       arg.Username,
			Email:          arg.Email,
			PasswordHash:   arg.PasswordHash,
			PINHash:        arg.PINHash,
			Balance:        arg.Balance,
			OpeningBalance: arg.Balance,
			Role:           arg.Role,
			Status:         arg.Status,
			Theme:          arg.Theme,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		st.accounts[arg.ID] = out
		st.usernames[arg.Username] = arg.ID
		st.emails[email] = arg.ID
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return out, nil
}

func (q *memQueries) GetAccount(_ context.Context, id uuid.UUID) (models.Account, error) {
	st, release := q.acquire()
	defer release()
	a, ok := st.accounts[id]
	if !ok {
		return models.Account{}, models.ErrNotFound
	}
	return a, nil
}

func (q *memQueries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return q.GetAccount(ctx, id)
}

func (q *memQueries) GetAccountByUsername(_ context.Context, username string) (models.Account, error) {
	st, release := q.acquire()
	defer release()
	id, ok := st.usernames[username]
	if !ok {
		return models.Account{}, models.ErrNotFound
	}
	return st.accounts[id], nil
}

func (q *memQueries) ListAccounts(context.Context) ([]models.Account, error) {
	st, release := q.acquire()
	defer release()
	out := make([]models.Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (q *memQueries) CountAccounts(context.Context) (int64, error) {
	st, release := q.acquire()
	defer release()
	return int64(len(st.accounts)), nil
}

func (q *memQueries) updateAccount(id uuid.UUID, fn func(a *models.Account) error) (models.Account, error) {
	var out models.Account
	err := q.write(func(st *memState) error {
		a, ok := st.accounts[id]
		if !ok {
			return models.ErrNotFound
		}
		if err := fn(&a); err != nil {
			return err
		}
		st.accounts[id] = a
		out = a
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return out, nil
}

func (q *memQueries) UpdateAccountStatus(_ context.Context, id uuid.UUID, status string) (models.Account, error) {
	return q.updateAccount(id, func(a *models.Account) error {
		a.Status = status
		a.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (q *memQueries) ApplyBalanceDelta(_ context.Context, id uuid.UUID, delta domain.Money) (domain.Money, error) {
	a, err := q.updateAccount(id, func(a *models.Account) error {
		if delta > 0 && a.Balance > math.MaxInt64-delta {
			return models.ErrBalanceOverflow
		}
		if a.Balance+delta < 0 {
			return models.ErrInsufficientFunds
		}
		a.Balance += delta
		a.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

func (q *memQueries) SetAuthToken(_ context.Context, id uuid.UUID, tokenHash *string) error {
	_, err := q.updateAccount(id, func(a *models.Account) error {
		a.AuthTokenHash = tokenHash
		a.UpdatedAt = time.Now().UTC()
		return nil
	})
	return err
}

func (q *memQueries) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	_, err := q.updateAccount(id, func(a *models.Account) error {
		a.LastLoginAt = &at
		return nil
	})
	return err
}

func (q *memQueries) SetAvatar(_ context.Context, id uuid.UUID, avatar *string) (models.Account, error) {
	return q.updateAccount(id, func(a *models.Account) error {
		a.Avatar = avatar
		a.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (q *memQueries) SetTheme(_ context.Context, id uuid.UUID, theme string) (models.Account, error) {
	return q.updateAccount(id, func(a *models.Account) error {
		a.Theme = theme
		a.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (q *memQueries) InsertTransaction(_ context.Context, arg InsertTransactionParams) (models.Transaction, error) {
	var out models.Transaction
	err := q.write(func(st *memState) error {
		if _, ok := st.accounts[arg.AccountID]; !ok {
			return models.ErrNotFound
		}
		if _, ok := st.receipts[arg.ReceiptNo]; ok {
			return models.ErrDuplicateReceipt
		}
		if arg.ReversesID != nil {
			for _, e := range st.txs {
				if e.tx.ReversesID != nil && *e.tx.ReversesID == *arg.ReversesID {
					return models.ErrAlreadyReversed
				}
			}
		}
		st.nextSeq++
		out = models.Transaction{
			ID:             arg.ID,
			ReceiptNo:      arg.ReceiptNo,
			AccountID:      arg.AccountID,
			Type:           arg.Type,
			Amount:         arg.Amount,
			TransferMethod: arg.TransferMethod,
			RecipientInfo:  append([]byte(nil), arg.RecipientInfo...),
			Memo:           arg.Memo,
			CreatedBy:      arg.CreatedBy,
			ReversesID:     arg.ReversesID,
			CreatedAt:      arg.CreatedAt,
		}
		if len(out.RecipientInfo) == 0 {
			out.RecipientInfo = nil
		}
		st.txs = append(st.txs, memTx{seq: st.nextSeq, tx: out})
		st.receipts[arg.ReceiptNo] = struct{}{}
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return out, nil
}

func (q *memQueries) GetTransaction(_ context.Context, id uuid.UUID) (models.Transaction, error) {
	st, release := q.acquire()
	defer release()
	for _, e := range st.txs {
		if e.tx.ID == id {
			return e.tx, nil
		}
	}
	return models.Transaction{}, models.ErrNotFound
}

func (q *memQueries) ReceiptExists(_ context.Context, receiptNo string) (bool, error) {
	st, release := q.acquire()
	defer release()
	_, ok := st.receipts[receiptNo]
	return ok, nil
}

func (q *memQueries) IsReversed(_ context.Context, id uuid.UUID) (bool, error) {
	st, release := q.acquire()
	defer release()
	for _, e := range st.txs {
		if e.tx.ReversesID != nil && *e.tx.ReversesID == id {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	return q.ListTransactions(ctx, models.TransactionFilter{AccountID: &accountID})
}

// ListTransactions returns matches newest first, ties broken by insertion order.
func (q *memQueries) ListTransactions(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	st, release := q.acquire()
	defer release()
	matched := make([]memTx, 0, len(st.txs))
	for _, e := range st.txs {
		if filter.Matches(e.tx) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].tx.CreatedAt.Equal(matched[j].tx.CreatedAt) {
			return matched[i].tx.CreatedAt.After(matched[j].tx.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	out := make([]models.Transaction, len(matched))
	for i, e := range matched {
		out[i] = e.tx
	}
	return out, nil
}

func (q *memQueries) DeleteTransaction(_ context.Context, id uuid.UUID) (int64, error) {
	var n int64
	err := q.write(func(st *memState) error {
		kept := st.txs[:0:0]
		for _, e := range st.txs {
			if e.tx.ID == id {
				delete(st.receipts, e.tx.ReceiptNo)
				n++
				continue
			}
			kept = append(kept, e)
		}
		// reverses_id references are cleared like ON DELETE SET NULL.
		for i := range kept {
			if kept[i].tx.ReversesID != nil && *kept[i].tx.ReversesID == id {
				kept[i].tx.ReversesID = nil
			}
		}
		st.txs = kept
		return nil
	})
	return n, err
}

func (q *memQueries) InsertAuditLog(_ context.Context, arg InsertAuditLogParams) (models.AuditEntry, error) {
	var out models.AuditEntry
	err := q.write(func(st *memState) error {
		st.nextAudit++
		out = models.AuditEntry{
			ID:         st.nextAudit,
			EntityType: arg.EntityType,
			EntityID:   arg.EntityID,
			ActorID:    arg.ActorID,
			Action:     arg.Action,
			PrevState:  arg.PrevState,
			NextState:  arg.NextState,
			CreatedAt:  time.Now().UTC(),
		}
		if len(arg.Metadata) > 0 {
			out.Metadata = append([]byte(nil), arg.Metadata...)
		}
		st.audit = append(st.audit, out)
		return nil
	})
	if err != nil {
		return models.AuditEntry{}, err
	}
	return out, nil
}

func (q *memQueries) ListAuditLogByEntity(_ context.Context, entityID uuid.UUID) ([]models.AuditEntry, error) {
	st, release := q.acquire()
	defer release()
	out := []models.AuditEntry{}
	for _, e := range st.audit {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (q *memQueries) GetBalanceDrifts(context.Context) ([]models.BalanceDrift, error) {
	st, release := q.acquire()
	defer release()
	ledger := make(map[uuid.UUID]domain.Money, len(st.accounts))
	for _, e := range st.txs {
		ledger[e.tx.AccountID] += domain.SignedAmount(e.tx.Type, e.tx.Amount)
	}
	drifts := []models.BalanceDrift{}
	for id, a := range st.accounts {
		expected := a.OpeningBalance + ledger[id]
		if a.Balance != expected {
			drifts = append(drifts, models.BalanceDrift{
				AccountID:     id,
				Username:      a.Username,
				Balance:       a.Balance,
				LedgerBalance: expected,
				Drift:         a.Balance - expected,
			})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Username < drifts[j].Username })
	return drifts, nil
}
