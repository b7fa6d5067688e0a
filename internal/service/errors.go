package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidPin          = errors.New("invalid pin")
	ErrPinLocked           = errors.New("too many failed pin attempts")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrAccountInactive     = errors.New("account is not active")
	ErrInvalidStatus       = errors.New("invalid account status")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)
