package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/retail-banking/internal/api/middleware"
	"github.com/ayo6706/retail-banking/internal/api/problem"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// decodeJSON reads a single JSON object from the body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

func requestAccount(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return models.Account{}, false
	}
	return account, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// amountText accepts an amount sent either as a JSON string or a JSON number
// and returns its literal text, so decimals never pass through float64.
func amountText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	return string(raw)
}

// parseDateParam accepts RFC 3339 or YYYY-MM-DD. A date-only upper bound
// extends to the last nanosecond of that day.
func parseDateParam(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// writeServiceError maps domain and store errors onto problem responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		RespondError(w, r, http.StatusBadRequest, "request/invalid", err.Error())
	case errors.Is(err, service.ErrInvalidPin):
		RespondError(w, r, http.StatusBadRequest, "transfer/invalid-pin", "Invalid PIN")
	case errors.Is(err, models.ErrInsufficientFunds):
		RespondError(w, r, http.StatusBadRequest, "transfer/insufficient-funds", "Insufficient funds")
	case errors.Is(err, service.ErrPinLocked):
		RespondError(w, r, http.StatusTooManyRequests, "transfer/pin-locked", "Too many failed PIN attempts, try again later")
	case errors.Is(err, service.ErrInvalidCredentials):
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-credentials", "Invalid username or password")
	case errors.Is(err, service.ErrAccountInactive):
		RespondError(w, r, http.StatusForbidden, "account/inactive", "Account is not active")
	case errors.Is(err, service.ErrInvalidStatus):
		RespondError(w, r, http.StatusBadRequest, "account/invalid-status", err.Error())
	case errors.Is(err, service.ErrAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
	case errors.Is(err, service.ErrTransactionNotFound), errors.Is(err, models.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "Transaction not found")
	case errors.Is(err, models.ErrDuplicateUsername):
		RespondError(w, r, http.StatusConflict, "account/duplicate-username", "Username already taken")
	case errors.Is(err, models.ErrDuplicateEmail):
		RespondError(w, r, http.StatusConflict, "account/duplicate-email", "Email already registered")
	case errors.Is(err, models.ErrBalanceOverflow):
		RespondError(w, r, http.StatusBadRequest, "request/invalid", "Resulting balance is out of range")
	case errors.Is(err, models.ErrAlreadyReversed):
		RespondError(w, r, http.StatusConflict, "transaction/already-reversed", "Transaction has already been reversed")
	default:
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error(operation+" failed",
			zap.Error(err),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "Failed to "+operation)
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	default:
		return 0, "", "", false
	}
}
