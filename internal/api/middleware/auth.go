package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/ayo6706/retail-banking/internal/api/problem"
	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	accountContextKey contextKey = "account"
	holderContextKey  contextKey = "account_holder"
	traceContextKey   contextKey = "trace_id"
)

type accountHolder struct {
	id uuid.UUID
}

func withAccountHolder(ctx context.Context, h *accountHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

// AuthMiddleware resolves the caller through authn and injects the account into the context.
func AuthMiddleware(authn auth.Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := authn.Authenticate(r)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrNoCredentials):
					problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/credentials-required"), http.StatusText(http.StatusUnauthorized), "bearer token or session cookie required")
				case errors.Is(err, auth.ErrUnauthenticated):
					problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-credentials"), http.StatusText(http.StatusUnauthorized), "invalid or expired credentials")
				default:
					logger.Error("authentication failed", zap.Error(err), zap.String("trace_id", TraceIDFromContext(r.Context())))
					problem.Write(w, r, http.StatusInternalServerError, problem.Type("internal-server-error"), http.StatusText(http.StatusInternalServerError), "authentication unavailable")
				}
				return
			}
			if h, ok := r.Context().Value(holderContextKey).(*accountHolder); ok {
				h.id = account.ID
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

// RequireRole ensures the authenticated account has the required role.
func RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := AccountFromContext(r.Context())
			if !ok || account.Role != requiredRole {
				problem.Write(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), http.StatusText(http.StatusForbidden), "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithAccount(ctx context.Context, account models.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// AccountFromContext returns the authenticated account.
func AccountFromContext(ctx context.Context) (models.Account, bool) {
	if ctx == nil {
		return models.Account{}, false
	}
	account, ok := ctx.Value(accountContextKey).(models.Account)
	return account, ok
}

// AccountIDFromContext returns the authenticated account id, or uuid.Nil.
func AccountIDFromContext(ctx context.Context) uuid.UUID {
	if account, ok := AccountFromContext(ctx); ok {
		return account.ID
	}
	return uuid.Nil
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
