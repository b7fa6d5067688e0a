package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/domain"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxMemoLength     = 255
	maxAvatarLength   = 2048
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return "", invalid("username must be 3-32 characters of letters, digits, '_', '.' or '-'")
	}
	return username, nil
}

// normalizeEmail lower-cases the address so uniqueness is case-insensitive.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", invalid("email must be a valid address")
	}
	return email, nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		return invalid("password must be at least %d characters", minPasswordLength)
	}
	if n > maxPasswordLength {
		return invalid("password must be at most %d characters", maxPasswordLength)
	}
	return nil
}

func validatePIN(pin string) error {
	if !auth.ValidPIN(pin) {
		return invalid("pin must be exactly 4 digits")
	}
	return nil
}

// parseAmount requires a positive value with at most two fractional digits.
func parseAmount(raw string) (domain.Money, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, invalid("amount is required")
	}
	amount, err := domain.ParseMoney(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	if !amount.IsPositive() {
		return 0, invalid("amount must be greater than zero")
	}
	if amount > domain.MaxAmount {
		return 0, invalid("amount must not exceed %s", domain.MaxAmount)
	}
	return amount, nil
}

// validateRecipientInfo accepts a non-empty JSON object and returns it compacted.
func validateRecipientInfo(raw json.RawMessage, required bool) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		if required {
			return nil, invalid("recipient_info is required")
		}
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, invalid("recipient_info must be a JSON object")
	}
	if len(fields) == 0 {
		return nil, invalid("recipient_info must not be empty")
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode recipient info: %w", err)
	}
	return out, nil
}

func validateMemo(memo string) (*string, error) {
	memo = strings.TrimSpace(memo)
	if utf8.RuneCountInString(memo) > maxMemoLength {
		return nil, invalid("memo must be at most %d characters", maxMemoLength)
	}
	return textParam(memo), nil
}
