package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PinLimiter counts failed PIN confirmations per account inside a fixed window.
type PinLimiter interface {
	// Locked reports whether the account has used up its failure budget.
	Locked(ctx context.Context, accountID uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, accountID uuid.UUID) (int, error)
	Reset(ctx context.Context, accountID uuid.UUID) error
}

// RedisPinLimiter stores the counter under pin_failures:<id> with the window as TTL.
type RedisPinLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewRedisPinLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisPinLimiter {
	return &RedisPinLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func pinKey(id uuid.UUID) string {
	return "pin_failures:" + id.String()
}

func (l *RedisPinLimiter) Locked(ctx context.Context, accountID uuid.UUID) (bool, error) {
	raw, err := l.client.Get(ctx, pinKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read pin failures: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return false, fmt.Errorf("parse pin failures: %w", err)
	}
	return n >= l.maxAttempts, nil
}

func (l *RedisPinLimiter) RecordFailure(ctx context.Context, accountID uuid.UUID) (int, error) {
	key := pinKey(accountID)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("record pin failure: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return int(n), fmt.Errorf("set pin failure window: %w", err)
		}
	}
	return int(n), nil
}

func (l *RedisPinLimiter) Reset(ctx context.Context, accountID uuid.UUID) error {
	if err := l.client.Del(ctx, pinKey(accountID)).Err(); err != nil {
		return fmt.Errorf("reset pin failures: %w", err)
	}
	return nil
}

type pinWindow struct {
	failures int
	resetAt  time.Time
}

// MemoryPinLimiter is the process-local PinLimiter.
type MemoryPinLimiter struct {
	mu          sync.Mutex
	windows     map[uuid.UUID]pinWindow
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewMemoryPinLimiter(maxAttempts int, window time.Duration) *MemoryPinLimiter {
	return &MemoryPinLimiter{
		windows:     make(map[uuid.UUID]pinWindow),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func (l *MemoryPinLimiter) current(id uuid.UUID) pinWindow {
	w, ok := l.windows[id]
	if ok && !l.now().Before(w.resetAt) {
		delete(l.windows, id)
		return pinWindow{}
	}
	return w
}

func (l *MemoryPinLimiter) Locked(_ context.Context, accountID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current(accountID).failures >= l.maxAttempts, nil
}

func (l *MemoryPinLimiter) RecordFailure(_ context.Context, accountID uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.current(accountID)
	if w.failures == 0 {
		w.resetAt = l.now().Add(l.window)
	}
	w.failures++
	l.windows[accountID] = w
	return w.failures, nil
}

func (l *MemoryPinLimiter) Reset(_ context.Context, accountID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, accountID)
	return nil
}
