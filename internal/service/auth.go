package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService registers accounts and issues/revokes their credentials.
type AuthService struct {
	store    QueryStore
	hasher   *auth.Hasher
	tokens   *auth.TokenIssuer
	sessions auth.SessionStore
	now      func() time.Time
}

func NewAuthService(store QueryStore, hasher *auth.Hasher, tokens *auth.TokenIssuer, sessions auth.SessionStore) *AuthService {
	return &AuthService{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	PIN      string
}

// Session is the outcome of a successful registration or login.
type Session struct {
	Account   models.Account
	Token     string
	ExpiresAt time.Time
	SessionID string
}

// Register creates a user account with zero balance and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validatePIN(in.PIN); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	pinHash, err := s.hasher.HashPIN(in.PIN)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	var (
		account   models.Account
		token     string
		expiresAt time.Time
	)
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		created, err := q.CreateAccount(ctx, repository.CreateAccountParams{
			ID:           uuid.New(),
			Username:     username,
			Email:        email,
			PasswordHash: passwordHash,
			PINHash:      pinHash,
			Balance:      0,
			Role:         domain.RoleUser,
			Status:       domain.StatusActive,
			Theme:        domain.ThemeLight,
		})
		if err != nil {
			return err
		}
		token, expiresAt, account, err = s.rotateToken(ctx, q, created)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateUsername) || errors.Is(err, models.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("register account: %w", err)
	}

	sessionID, err := s.sessions.Create(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	zap.L().Info("account registered", zap.String("account_id", account.ID.String()), zap.String("username", account.Username))
	return &Session{Account: account, Token: token, ExpiresAt: expiresAt, SessionID: sessionID}, nil
}

// Login verifies the password, replaces the stored token and opens a session.
// Previously issued tokens and cookie sessions stop working.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, invalid("username and password are required")
	}

	account, err := s.store.Queries().GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !s.hasher.VerifyPassword(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive() {
		return nil, ErrAccountInactive
	}

	var (
		token     string
		expiresAt time.Time
	)
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		var err error
		token, expiresAt, account, err = s.rotateToken(ctx, q, account)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	if err := s.sessions.RevokeAll(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}
	sessionID, err := s.sessions.Create(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Session{Account: account, Token: token, ExpiresAt: expiresAt, SessionID: sessionID}, nil
}

func (s *AuthService) rotateToken(ctx context.Context, q repository.Querier, account models.Account) (string, time.Time, models.Account, error) {
	token, expiresAt, err := s.tokens.Issue(account)
	if err != nil {
		return "", time.Time{}, account, err
	}
	digest := auth.TokenDigest(token)
	if err := q.SetAuthToken(ctx, account.ID, &digest); err != nil {
		return "", time.Time{}, account, fmt.Errorf("set auth token: %w", err)
	}
	if err := q.TouchLastLogin(ctx, account.ID, s.now().UTC()); err != nil {
		return "", time.Time{}, account, fmt.Errorf("touch last login: %w", err)
	}
	refreshed, err := q.GetAccount(ctx, account.ID)
	if err != nil {
		return "", time.Time{}, account, fmt.Errorf("reload account: %w", err)
	}
	return token, expiresAt, refreshed, nil
}

// Logout revokes the stored token and every cookie session of the account.
func (s *AuthService) Logout(ctx context.Context, accountID uuid.UUID) error {
	if err := s.store.Queries().SetAuthToken(ctx, accountID, nil); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("clear auth token: %w", err)
	}
	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// SessionTTL is the lifetime of cookie sessions created at login.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessions.TTL()
}
