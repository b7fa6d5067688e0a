package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/retail-banking/internal/api"
	"github.com/ayo6706/retail-banking/internal/api/middleware"
	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/idempotency"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/repository"
	"github.com/ayo6706/retail-banking/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "retail-banking-test"
	testJWTAudience = "retail-banking-api-test"
	testPassword    = "s3cret-pass"
	testPIN         = "1234"
	adminUsername   = "root"
	pinMaxAttempts  = 3
)

type testServer struct {
	handler http.Handler
	store   *repository.MemoryStore
}

func setupAPI(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	hasher := auth.NewHasher(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	tokens, err := auth.NewTokenIssuer(testJWTSecret, testJWTIssuer, testJWTAudience, time.Hour)
	require.NoError(t, err)
	sessions := auth.NewMemorySessionStore(time.Hour)
	limiter := auth.NewMemoryPinLimiter(pinMaxAttempts, time.Minute)

	audit := service.NewAuditService(store)
	accounts := service.NewAccountService(store, hasher, audit)
	_, err = accounts.EnsureAdmin(context.Background(), service.BootstrapAdminInput{
		Username: adminUsername,
		Email:    "root@bank.test",
		Password: testPassword,
		PIN:      "9999",
	})
	require.NoError(t, err)

	router := api.NewRouter(api.Dependencies{
		Logger:              zap.NewNop(),
		Store:               store,
		Authenticator:       auth.Chain(auth.NewTokenAuth(tokens, store.Queries()), auth.NewSessionAuth(sessions, store.Queries())),
		Idempotency:         idempotency.NewStore(idempotency.NewMemoryBackend(), time.Hour),
		Auth:                service.NewAuthService(store, hasher, tokens, sessions),
		Accounts:            accounts,
		Transfers:           service.NewTransferService(store, hasher, limiter, audit),
		Ledger:              service.NewLedgerService(store, audit),
		Reconciliation:      service.NewReconciliationService(store),
		Audit:               audit,
		PublicRateLimitRPS:  1000,
		AuthRateLimitRPS:    1000,
		SessionCookieSecure: false,
	})
	return &testServer{handler: router.Routes(), store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": username, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// createUser has the admin open an account with balance and returns it.
func (s *testServer) createUser(t *testing.T, adminToken, username, balance string) models.Account {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/admin/accounts", adminToken, map[string]string{
		"username": username,
		"email":    username + "@bank.test",
		"password": testPassword,
		"pin":      testPIN,
		"balance":  balance,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var account models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	return account
}

func (s *testServer) balance(t *testing.T, token string) string {
	t.Helper()
	w := s.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var account models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	return account.Balance.String()
}

func transferBody(amount any, pin string) map[string]any {
	return map[string]any{
		"amount":         amount,
		"transfer_type":  domain.MethodWire,
		"recipient_info": map[string]string{"name": "Bob", "account": "12345678"},
		"memo":           "rent",
		"pin":            pin,
	}
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRFC7807ProblemDetails(t *testing.T) {
	s := setupAPI(t)

	w := s.do(t, http.MethodGet, "/v1/me", "", nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, "https://errors.retail-banking.dev/auth/credentials-required", body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/me", body["instance"])
	assert.NotEmpty(t, body["trace_id"])
	assert.Equal(t, body["trace_id"], w.Header().Get(middleware.TraceHeader))
}

func TestRegisterAndSessionCookie(t *testing.T) {
	s := setupAPI(t)

	w := s.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@bank.test",
		"password": testPassword,
		"pin":      testPIN,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Account models.Account `json:"account"`
		Token   string         `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Account.Username)
	assert.Equal(t, "0.00", resp.Account.Balance.String())
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "pin_hash")

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.AddCookie(session)
	cookieResp := httptest.NewRecorder()
	s.handler.ServeHTTP(cookieResp, req)
	require.Equal(t, http.StatusOK, cookieResp.Code, cookieResp.Body.String())

	assert.Equal(t, "0.00", s.balance(t, resp.Token))

	dup := s.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "other@bank.test",
		"password": testPassword,
		"pin":      testPIN,
	})
	require.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, "https://errors.retail-banking.dev/account/duplicate-username", decodeProblem(t, dup)["type"])
}

func TestRegisterValidation(t *testing.T) {
	s := setupAPI(t)

	cases := []struct {
		name string
		body any
	}{
		{name: "malformed json", body: "{not json"},
		{name: "bad pin", body: map[string]string{"username": "alice", "email": "a@b.c", "password": testPassword, "pin": "12"}},
		{name: "bad email", body: map[string]string{"username": "alice", "email": "nope", "password": testPassword, "pin": testPIN}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/v1/auth/register", "", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	s := setupAPI(t)

	w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": adminUsername, "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "ghost", "password": testPassword})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	s := setupAPI(t)
	token := s.login(t, adminUsername)

	w := s.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesCookieSessions(t *testing.T) {
	s := setupAPI(t)
	w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": adminUsername, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	withCookie := func() int {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, withCookie())

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/v1/auth/logout", resp.Token, nil).Code)
	require.Equal(t, http.StatusUnauthorized, withCookie())
}

func TestStaleTokenRejectedAfterRelogin(t *testing.T) {
	s := setupAPI(t)
	first := s.login(t, adminUsername)
	second := s.login(t, adminUsername)

	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/me", first, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/me", second, nil).Code)
}

func TestInvalidBearerDoesNotFallBackToCookie(t *testing.T) {
	s := setupAPI(t)
	w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": adminUsername, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPreferences(t *testing.T) {
	s := setupAPI(t)
	token := s.login(t, adminUsername)

	w := s.do(t, http.MethodPatch, "/v1/me/theme", token, map[string]string{"theme": "dark"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"theme":"dark"`)

	w = s.do(t, http.MethodPatch, "/v1/me/theme", token, map[string]string{"theme": "neon"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/v1/me/avatar", token, map[string]string{"avatar": "https://cdn.bank.test/a.png"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"avatar":"https://cdn.bank.test/a.png"`)

	w = s.do(t, http.MethodPatch, "/v1/me/avatar", token, map[string]any{"avatar": nil})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"avatar"`)
}

func TestTransferFlow(t *testing.T) {
	s := setupAPI(t)
	adminToken := s.login(t, adminUsername)
	s.createUser(t, adminToken, "alice", "100.00")
	token := s.login(t, "alice")

	w := s.do(t, http.MethodPost, "/v1/transfers", token, transferBody("40.00", testPIN))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "40.00", created.Transaction.Amount.String())
	assert.Equal(t, domain.TxTypeTransfer, created.Transaction.Type)
	assert.Len(t, created.Transaction.ReceiptNo, domain.ReceiptDigits)
	assert.Equal(t, "60.00", s.balance(t, token))

	// Numeric amounts are read from their literal text.
	w = s.do(t, http.MethodPost, "/v1/transfers", token, transferBody(json.Number("10.5"), testPIN))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "49.50", s.balance(t, token))

	w = s.do(t, http.MethodGet, "/v1/transactions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "10.50", history[0].Amount.String(), "newest first")
}

func TestTransferRejections(t *testing.T) {
	s := setupAPI(t)
	adminToken := s.login(t, adminUsername)
	s.createUser(t, adminToken, "alice", "100.00")
	token := s.login(t, "alice")

	cases := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantType   string
	}{
		{name: "insufficient funds", body: transferBody("150.00", testPIN), wantStatus: http.StatusBadRequest, wantType: "transfer/insufficient-funds"},
		{name: "zero amount", body: transferBody("0", testPIN), wantStatus: http.StatusBadRequest, wantType: "request/invalid"},
		{name: "negative amount", body: transferBody("-5.00", testPIN), wantStatus: http.StatusBadRequest, wantType: "request/invalid"},
		{name: "unknown method", body: func() map[string]any {
			b := transferBody("5.00", testPIN)
			b["transfer_type"] = "pigeon"
			return b
		}(), wantStatus: http.StatusBadRequest, wantType: "request/invalid"},
		{name: "wrong pin", body: transferBody("5.00", "0000"), wantStatus: http.StatusBadRequest, wantType: "transfer/invalid-pin"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/v1/transfers", token, tc.body)
			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, "https://errors.retail-banking.dev/"+tc.wantType, decodeProblem(t, w)["type"])
		})
	}

	assert.Equal(t, "100.00", s.balance(t, token))
	w := s.do(t, http.MethodGet, "/v1/transactions", token, nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestTransferPinLockout(t *testing.T) {
	s := setupAPI(t)
	adminToken := s.login(t, adminUsername)
	s.createUser(t, adminToken, "alice", "100.00")
	token := s.login(t, "alice")

	for i := 0; i < pinMaxAttempts; i++ {
		w := s.do(t, http.MethodPost, "/v1/transfers", token, transferBody("5.00", "0000"))
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := s.do(t, http.MethodPost, "/v1/transfers", token, transferBody("5.00", testPIN))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "100.00", s.balance(t, token))
}

func TestTransferIdempotency(t *testing.T) {
	s := setupAPI(t)
	adminToken := s.login(t, adminUsername)
	s.createUser(t, adminToken, "alice", "100.00")
	token := s.login(t, "alice")
	key := "transfer-key-1"

	first := s.do(t, http.MethodPost, "/v1/transfers", token, transferBody("30.00", testPIN), middleware.IdempotencyKeyHeader, key)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get(middleware.ReplayHeader))

	second := s.do(t, http.MethodPost, "/v1/transfers", token, transferBody("30.00", testPIN), middleware.IdempotencyKeyHeader, key)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "memory", second.Header().Get(middleware.ReplayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "70.00", s.balance(t, token))

	conflict := s.do(t, http.MethodPost, "/v1/transfers", token, transferBody("31.00", testPIN), middleware.IdempotencyKeyHeader, key)
	require.Equal(t, http.StatusConflict, conflict.Code)

	w := s.do(t, http.MethodGet, "/v1/transactions", token, nil)
	var history []models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 1)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := setupAPI(t)
	adminToken := s.login(t, adminUsername)
	s.createUser(t, adminToken, "alice", "0")
	token := s.login(t, "alice")

	for _, path := range []string{"/v1/admin/accounts", "/v1/admin/transactions", "/v1/admin/reconciliation"} {
		w := s.do(t, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusForbidden, w.Code, path)
	}
	w := s.do(t, http.MethodGet, "/v1/admin/accounts", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminStatusChange(t *testing.T) {
	s := setupAPI(t)
	adminToken := s.login(t, adminUsername)
	alice := s.createUser(t, adminToken, "alice", "10.00")
	token := s.login(t, "alice")

	w := s.do(t, http.MethodPatch, "/v1/admin/accounts/"+alice.ID.String()+"/status", adminToken, map[string]string{"status": domain.StatusInactive})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"inactive"`)

	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/me", token, nil).Code)

	w = s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "alice", "password": testPassword})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/v1/admin/accounts/"+alice.ID.String()+"/status", adminToken, map[string]string{"status": "frozen"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/v1/admin/accounts/not-a-uuid/status", adminToken, map[string]string{"status": domain.StatusActive})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/v1/admin/accounts/00000000-0000-0000-0000-000000000001/status", adminToken, map[string]string{"status": domain.StatusActive})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/admin/accounts", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var accounts []models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accounts))
	assert.Len(t, accounts, 2)
}

func TestAdminTransactionLifecycle(t *testing.T) {
	s := setupAPI(t)
	adminToken := s.login(t, adminUsername)
	alice := s.createUser(t, adminToken, "alice", "60.00")
	token := s.login(t, "alice")

	w := s.do(t, http.MethodPost, "/v1/admin/transactions", adminToken, map[string]any{
		"account_id": alice.ID.String(),
		"type":       domain.TxTypeDeposit,
		"amount":     "25.00",
		"memo":       "branch deposit",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var deposit service.AdminTransactionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deposit))
	assert.Equal(t, "deposit of 25.00 recorded", deposit.Message)
	assert.Equal(t, "85.00", s.balance(t, token))

	w = s.do(t, http.MethodPost, "/v1/admin/transactions", adminToken, map[string]any{
		"account_id": alice.ID.String(),
		"type":       domain.TxTypeWithdrawal,
		"amount":     "500.00",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/admin/transactions", adminToken, map[string]any{
		"account_id": "00000000-0000-0000-0000-000000000001",
		"type":       domain.TxTypeDeposit,
		"amount":     "1.00",
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	today := time.Now().UTC().Format("2006-01-02")
	w = s.do(t, http.MethodGet, "/v1/admin/transactions?account_id="+alice.ID.String()+"&start_date="+today+"&end_date="+today, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var listed []models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	w = s.do(t, http.MethodGet, "/v1/admin/transactions?end_date=2000-01-01", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/admin/transactions?start_date=yesterday", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	reversePath := "/v1/admin/transactions/" + deposit.Transaction.ID.String() + "/reverse"
	w = s.do(t, http.MethodPost, reversePath, adminToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "60.00", s.balance(t, token))

	w = s.do(t, http.MethodPost, reversePath, adminToken, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/v1/admin/audit/"+deposit.Transaction.ID.String(), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trail []models.AuditEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trail))
	require.NotEmpty(t, trail)
	assert.Equal(t, "admin_create", trail[0].Action)
}

func TestAdminDeleteTransactionLeavesBalance(t *testing.T) {
	s := setupAPI(t)
	adminToken := s.login(t, adminUsername)
	s.createUser(t, adminToken, "alice", "100.00")
	token := s.login(t, "alice")

	w := s.do(t, http.MethodPost, "/v1/transfers", token, transferBody("40.00", testPIN))
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	path := "/v1/admin/transactions/" + created.Transaction.ID.String()
	w = s.do(t, http.MethodDelete, path, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":true}`, w.Body.String())

	w = s.do(t, http.MethodDelete, path, adminToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, "60.00", s.balance(t, token))
	w = s.do(t, http.MethodGet, "/v1/transactions", token, nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/admin/reconciliation", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report service.ReconciliationReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Drifted, 1)
	assert.Equal(t, "alice", report.Drifted[0].Username)
	assert.Equal(t, "-40.00", report.Drifted[0].Drift.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/openapi.yaml"} {
		w := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	w := s.do(t, http.MethodGet, "/v1/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
