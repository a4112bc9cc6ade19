// Package session maps an opaque wizard session id to the application the
// actor is currently working on.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"amerifund/internal/repositories/cache"

	"github.com/google/uuid"
)

// CookieName carries the session id.
const CookieName = "wizard_session"

// ErrNoPointer is returned by Get when the session tracks no application.
var ErrNoPointer = errors.New("session holds no application")

// Pointer is what the store keeps per session.
type Pointer struct {
	ApplicationID uint `json:"application_id"`
	UserID        uint `json:"user_id"`
}

type Store interface {
	Get(ctx context.Context, sessionID string) (Pointer, error)
	Set(ctx context.Context, sessionID string, p Pointer) error
	Clear(ctx context.Context, sessionID string) error
}

// NewID returns a fresh opaque session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like one issued by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type redisStore struct {
	cache *cache.CacheService
	ttl   time.Duration
}

// NewRedisStore keeps pointers in Redis. Each read slides the expiry.
func NewRedisStore(c *cache.CacheService, ttl time.Duration) Store {
	return &redisStore{cache: c, ttl: ttl}
}

func key(sessionID string) string {
	return cache.GenerateKey(cache.EntitySession, cache.KeyID, sessionID)
}

func (s *redisStore) Get(ctx context.Context, sessionID string) (Pointer, error) {
	var p Pointer
	found, err := s.cache.Get(ctx, key(sessionID), &p)
	if err != nil {
		return Pointer{}, err
	}
	if !found || p.ApplicationID == 0 {
		return Pointer{}, ErrNoPointer
	}
	if err := s.cache.Expire(ctx, key(sessionID), s.ttl); err != nil {
		return Pointer{}, err
	}
	return p, nil
}

func (s *redisStore) Set(ctx context.Context, sessionID string, p Pointer) error {
	return s.cache.SetWithTTL(ctx, key(sessionID), p, s.ttl)
}

func (s *redisStore) Clear(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, key(sessionID))
}

// MemoryStore is a process-local Store for tests and single-node development.
type MemoryStore struct {
	mu       sync.Mutex
	pointers map[string]Pointer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pointers: make(map[string]Pointer)}
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pointers[sessionID]
	if !ok {
		return Pointer{}, ErrNoPointer
	}
	return p, nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID string, p Pointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pointers[sessionID] = p
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pointers, sessionID)
	return nil
}
