package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

// Record is a stored response, or a reservation while InProgress is set.
type Record struct {
	Key         string `json:"key"`
	RequestHash string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	InProgress  bool   `json:"in_progress"`
	ServedBy    string `json:"-"`
}

// Backend persists records with a TTL. Reserve must be atomic: exactly one
// caller wins for a given key.
type Backend interface {
	Get(ctx context.Context, key string) (*Record, error)
	Reserve(ctx context.Context, rec Record, ttl time.Duration) (bool, error)
	Put(ctx context.Context, rec Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Name() string
}

type Store struct {
	backend Backend
	ttl     time.Duration
}

func NewStore(backend Backend, ttl time.Duration) *Store {
	return &Store{backend: backend, ttl: ttl}
}

func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	rec, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if rec.RequestHash != requestHash {
		return nil, ErrHashMismatch
	}
	if rec.InProgress {
		return nil, ErrInProgress
	}
	rec.ServedBy = s.backend.Name()
	return rec, nil
}

// Reserve claims key for the request; false means another request holds it.
func (s *Store) Reserve(ctx context.Context, key, requestHash string) (bool, error) {
	ok, err := s.backend.Reserve(ctx, Record{Key: key, RequestHash: requestHash, InProgress: true}, s.ttl)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	rec := Record{
		Key:         key,
		RequestHash: requestHash,
		Status:      status,
		Body:        body,
		ContentType: contentType,
	}
	if err := s.backend.Put(ctx, rec, s.ttl); err != nil {
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	rec.ServedBy = s.backend.Name()
	return &rec, nil
}

// Release drops a reservation so the request can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrInProgress) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				continue
			}
		}
		return nil, err
	}
}
