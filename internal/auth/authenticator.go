package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNoCredentials means the strategy found nothing to check and the
	// next strategy in a Chain should run.
	ErrNoCredentials = errors.New("no credentials presented")
	// ErrUnauthenticated means credentials were presented and rejected.
	ErrUnauthenticated = errors.New("authentication failed")
)

// AccountGetter loads accounts by id. repository.Querier satisfies it.
type AccountGetter interface {
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
}

// Authenticator resolves the account behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (models.Account, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (models.Account, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (models.Account, error) {
	return f(r)
}

// Chain tries each strategy in order, moving on only on ErrNoCredentials.
func Chain(strategies ...Authenticator) Authenticator {
	return AuthenticatorFunc(func(r *http.Request) (models.Account, error) {
		for _, s := range strategies {
			account, err := s.Authenticate(r)
			if errors.Is(err, ErrNoCredentials) {
				continue
			}
			return account, err
		}
		return models.Account{}, ErrNoCredentials
	})
}

// TokenAuth accepts "Authorization: Bearer <jwt>" when the token verifies and
// its digest matches the one stored on an active account.
type TokenAuth struct {
	issuer   *TokenIssuer
	accounts AccountGetter
}

func NewTokenAuth(issuer *TokenIssuer, accounts AccountGetter) *TokenAuth {
	return &TokenAuth{issuer: issuer, accounts: accounts}
}

func (a *TokenAuth) Authenticate(r *http.Request) (models.Account, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return models.Account{}, ErrNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return models.Account{}, fmt.Errorf("%w: invalid authorization header", ErrUnauthenticated)
	}
	token = strings.TrimSpace(token)

	claims, err := a.issuer.Parse(token)
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	id, _ := claims.AccountID()

	account, err := a.accounts.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Account{}, fmt.Errorf("%w: unknown account", ErrUnauthenticated)
		}
		return models.Account{}, fmt.Errorf("load account: %w", err)
	}
	if account.AuthTokenHash == nil ||
		subtle.ConstantTimeCompare([]byte(*account.AuthTokenHash), []byte(TokenDigest(token))) != 1 {
		return models.Account{}, fmt.Errorf("%w: token has been replaced or revoked", ErrUnauthenticated)
	}
	if !account.IsActive() {
		return models.Account{}, fmt.Errorf("%w: account is not active", ErrUnauthenticated)
	}
	return account, nil
}

// SessionAuth accepts the session cookie issued at login.
type SessionAuth struct {
	sessions SessionStore
	accounts AccountGetter
}

func NewSessionAuth(sessions SessionStore, accounts AccountGetter) *SessionAuth {
	return &SessionAuth{sessions: sessions, accounts: accounts}
}

func (a *SessionAuth) Authenticate(r *http.Request) (models.Account, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return models.Account{}, ErrNoCredentials
	}

	id, err := a.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return models.Account{}, fmt.Errorf("%w: session expired", ErrUnauthenticated)
		}
		return models.Account{}, err
	}

	account, err := a.accounts.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Account{}, fmt.Errorf("%w: unknown account", ErrUnauthenticated)
		}
		return models.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive() {
		return models.Account{}, fmt.Errorf("%w: account is not active", ErrUnauthenticated)
	}
	return account, nil
}
