package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/labelscan/portal/internal/repository"
)

// TokenStore is the persisted copy of the bearer token. Implementations are
// last-writer-wins.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// KVTokenStore keeps the token in the key/value repository under one key
type KVTokenStore struct {
	repo repository.KeyValueRepo
	key  string
}

// NewKVTokenStore creates a token store backed by repo
func NewKVTokenStore(repo repository.KeyValueRepo, key string) *KVTokenStore {
	return &KVTokenStore{repo: repo, key: key}
}

func (s *KVTokenStore) Load(ctx context.Context) (string, error) {
	token, ok, err := s.repo.Get(ctx, s.key)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (s *KVTokenStore) Save(ctx context.Context, token string) error {
	if err := s.repo.Set(ctx, s.key, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *KVTokenStore) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// MemoryTokenStore holds the token in process memory
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Clear(context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
