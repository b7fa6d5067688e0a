package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AccountService struct {
	store  QueryStore
	hasher *auth.Hasher
	audit  *AuditService
}

func NewAccountService(store QueryStore, hasher *auth.Hasher, audit *AuditService) *AccountService {
	return &AccountService{
		store:  store,
		hasher: hasher,
		audit:  audit,
	}
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.store.Queries().GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// List returns every account, newest first.
func (s *AccountService) List(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.store.Queries().ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// AdminCreateInput is an account created by an admin with explicit balance,
// role and status. Empty Role, Status and Balance fall back to user, active and 0.
type AdminCreateInput struct {
	Username string
	Email    string
	Password string
	PIN      string
	Balance  string
	Role     string
	Status   string
}

func (s *AccountService) AdminCreate(ctx context.Context, actorID uuid.UUID, in AdminCreateInput) (*models.Account, error) {
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

	var balance domain.Money
	if strings.TrimSpace(in.Balance) != "" {
		balance, err = domain.ParseMoney(in.Balance)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
		}
		if balance < 0 {
			return nil, invalid("balance must not be negative")
		}
		if balance > domain.MaxAmount {
			return nil, invalid("balance must not exceed %s", domain.MaxAmount)
		}
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.IsValidRole(role) {
		return nil, invalid("role must be user or admin")
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = domain.StatusActive
	}
	if !domain.IsValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	passwordHash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	pinHash, err := s.hasher.HashPIN(in.PIN)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	var account models.Account
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		created, err := q.CreateAccount(ctx, repository.CreateAccountParams{
			ID:           uuid.New(),
			Username:     username,
			Email:        email,
			PasswordHash: passwordHash,
			PINHash:      pinHash,
			Balance:      balance,
			Role:         role,
			Status:       status,
			Theme:        domain.ThemeLight,
		})
		if err != nil {
			return err
		}
		account = created
		return s.audit.Write(ctx, q, auditEntityAccount, created.ID, &actorID, "admin_create", "", status, map[string]any{
			"username": username,
			"role":     role,
			"balance":  balance.String(),
		})
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateUsername) || errors.Is(err, models.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &account, nil
}

// SetStatus changes an account's status. Deleted is terminal. Any status other
// than active also revokes the stored token.
func (s *AccountService) SetStatus(ctx context.Context, actorID, accountID uuid.UUID, status string) (*models.Account, error) {
	status = strings.TrimSpace(status)
	if !domain.IsValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	var account models.Account
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		current, err := q.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		if current.Status == status {
			account = current
			return nil
		}
		if current.Status == domain.StatusDeleted {
			return fmt.Errorf("%w: deleted accounts cannot be restored", ErrInvalidStatus)
		}

		updated, err := q.UpdateAccountStatus(ctx, accountID, status)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if status != domain.StatusActive {
			if err := q.SetAuthToken(ctx, accountID, nil); err != nil {
				return fmt.Errorf("revoke token: %w", err)
			}
			updated.AuthTokenHash = nil
		}
		account = updated
		return s.audit.Write(ctx, q, auditEntityAccount, accountID, &actorID, "status_change", current.Status, status, nil)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("account status changed",
		zap.String("account_id", accountID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("status", status))
	return &account, nil
}

func (s *AccountService) SetTheme(ctx context.Context, accountID uuid.UUID, theme string) (*models.Account, error) {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if !domain.IsValidTheme(theme) {
		return nil, invalid("theme must be one of light, dark, system")
	}
	account, err := s.store.Queries().SetTheme(ctx, accountID, theme)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("set theme: %w", err)
	}
	return &account, nil
}

// SetAvatar stores an avatar reference; an empty value clears it.
func (s *AccountService) SetAvatar(ctx context.Context, accountID uuid.UUID, avatar string) (*models.Account, error) {
	avatar = strings.TrimSpace(avatar)
	if utf8.RuneCountInString(avatar) > maxAvatarLength {
		return nil, invalid("avatar must be at most %d characters", maxAvatarLength)
	}
	account, err := s.store.Queries().SetAvatar(ctx, accountID, textParam(avatar))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("set avatar: %w", err)
	}
	return &account, nil
}

// BootstrapAdminInput seeds the first administrator.
type BootstrapAdminInput struct {
	Username string
	Email    string
	Password string
	PIN      string
}

// EnsureAdmin creates the admin account unless the username already exists.
func (s *AccountService) EnsureAdmin(ctx context.Context, in BootstrapAdminInput) (*models.Account, error) {
	existing, err := s.store.Queries().GetAccountByUsername(ctx, strings.TrimSpace(in.Username))
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("look up admin: %w", err)
	}

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

	account, err := s.store.Queries().CreateAccount(ctx, repository.CreateAccountParams{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		PINHash:      pinHash,
		Role:         domain.RoleAdmin,
		Status:       domain.StatusActive,
		Theme:        domain.ThemeLight,
	})
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	zap.L().Info("bootstrap admin created", zap.String("username", username))
	return &account, nil
}
