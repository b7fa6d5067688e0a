package service

import (
	"context"

	"github.com/ayo6706/retail-banking/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
// Both repository.Store and repository.MemoryStore satisfy it.
type QueryStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}
