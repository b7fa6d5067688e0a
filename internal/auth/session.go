package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionCookieName carries the session id for cookie-based authentication.
const SessionCookieName = "session_id"

var ErrSessionNotFound = errors.New("session not found")

// SessionStore maps opaque session ids to account ids. RevokeAll drops every
// session of one account.
type SessionStore interface {
	Create(ctx context.Context, accountID uuid.UUID) (string, error)
	Get(ctx context.Context, sessionID string) (uuid.UUID, error)
	RevokeAll(ctx context.Context, accountID uuid.UUID) error
	TTL() time.Duration
}

// RedisSessionStore keeps sessions as expiring keys plus a per-account set of
// session ids used for revocation.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return "session:" + id
}

func accountSessionsKey(accountID uuid.UUID) string {
	return "account_sessions:" + accountID.String()
}

func (s *RedisSessionStore) Create(ctx context.Context, accountID uuid.UUID) (string, error) {
	id := uuid.NewString()
	index := accountSessionsKey(accountID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(id), accountID.String(), s.ttl)
		pipe.SAdd(ctx, index, id)
		pipe.Expire(ctx, index, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (uuid.UUID, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load session: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrSessionNotFound
	}
	return id, nil
}

func (s *RedisSessionStore) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	index := accountSessionsKey(accountID)
	ids, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, index)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) TTL() time.Duration {
	return s.ttl
}

type memorySession struct {
	accountID uuid.UUID
	expiresAt time.Time
}

// MemorySessionStore is used when no Redis is configured.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Create(_ context.Context, accountID uuid.UUID) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = memorySession{accountID: accountID, expiresAt: s.now().Add(s.ttl)}
	return id, nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return uuid.Nil, ErrSessionNotFound
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, sessionID)
		return uuid.Nil, ErrSessionNotFound
	}
	return sess.accountID, nil
}

func (s *MemorySessionStore) RevokeAll(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.accountID == accountID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *MemorySessionStore) TTL() time.Duration {
	return s.ttl
}
