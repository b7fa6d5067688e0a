package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ayo6706/retail-banking/internal/domain"
	"github.com/ayo6706/retail-banking/internal/repository"
)

const maxReceiptAttempts = 5

var receiptSpace = big.NewInt(10_000_000)

var errReceiptExhausted = errors.New("could not allocate a unique receipt number")

// generateReceipt is replaced in tests to force collisions.
var generateReceipt = randomReceipt

func randomReceipt() (string, error) {
	n, err := rand.Int(rand.Reader, receiptSpace)
	if err != nil {
		return "", fmt.Errorf("generate receipt number: %w", err)
	}
	return fmt.Sprintf("%0*d", domain.ReceiptDigits, n.Int64()), nil
}

// allocateReceipt draws receipt numbers until one is unused in q.
func allocateReceipt(ctx context.Context, q repository.Querier) (string, error) {
	for attempt := 0; attempt < maxReceiptAttempts; attempt++ {
		receipt, err := generateReceipt()
		if err != nil {
			return "", err
		}
		exists, err := q.ReceiptExists(ctx, receipt)
		if err != nil {
			return "", err
		}
		if !exists {
			return receipt, nil
		}
	}
	return "", errReceiptExhausted
}
