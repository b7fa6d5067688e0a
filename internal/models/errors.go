package models

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateReceipt  = errors.New("receipt number already used")
	ErrAlreadyReversed   = errors.New("transaction already reversed")
	ErrBalanceOverflow   = errors.New("balance out of range")
)
