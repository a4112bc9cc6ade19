package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"amerifund/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

type CacheService struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCacheService(client redis.UniversalClient, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    defaultTTL,
	}
}

// Base operations
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetWithTTL(ctx, key, value, s.ttl)
}

func (s *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

// Expire refreshes the TTL of an existing key.
func (s *CacheService) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// User caching. Entries are keyed by id and by email.
func (s *CacheService) CacheUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("cannot cache nil user")
	}

	for _, key := range userKeys(user.ID, user.Email) {
		if err := s.Set(ctx, key, user); err != nil {
			return err
		}
	}
	return nil
}

func (s *CacheService) GetUser(ctx context.Context, key string) (*models.User, error) {
	var user models.User
	found, err := s.Get(ctx, key, &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCacheMiss
	}
	return &user, nil
}

// InvalidateUser drops every cached entry of the user. email may be empty
// when only the id is known; the cached copy then supplies it.
func (s *CacheService) InvalidateUser(ctx context.Context, userID uint, email string) error {
	if email == "" {
		if cached, err := s.GetUser(ctx, GenerateKey(EntityUser, KeyID, userID)); err == nil {
			email = cached.Email
		}
	}
	return s.Delete(ctx, userKeys(userID, email)...)
}

func userKeys(id uint, email string) []string {
	keys := []string{GenerateKey(EntityUser, KeyID, id)}
	if email != "" {
		keys = append(keys, GenerateKey(EntityUser, KeyEmail, email))
	}
	return keys
}

// Close closes the Redis client connection
func (s *CacheService) Close() error {
	return s.client.Close()
}
