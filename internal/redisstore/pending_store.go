package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/ecgdrive/internal/google"
)

// Verify interface compliance
var _ google.PendingStore = (*PendingStore)(nil)

const pendingKeyPrefix = "oauth:state:"

// PendingStore implements google.PendingStore with one TTL'd key per state.
type PendingStore struct {
	client *redis.Client
	prefix string
}

// NewPendingStore creates a pending authorization store under prefix.
func NewPendingStore(client *redis.Client, prefix string) *PendingStore {
	return &PendingStore{
		client: client,
		prefix: prefix + pendingKeyPrefix,
	}
}

// Put stores p until its ExpiresAt. Already expired entries are dropped.
func (s *PendingStore) Put(ctx context.Context, p *google.PendingAuthorization) error {
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization state: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+p.State, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save authorization state: %w", err)
	}
	return nil
}

// Take atomically reads and deletes the state.
func (s *PendingStore) Take(ctx context.Context, state string) (*google.PendingAuthorization, error) {
	data, err := s.client.GetDel(ctx, s.prefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take authorization state: %w", err)
	}

	var p google.PendingAuthorization
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization state: %w", err)
	}
	if p.Expired(time.Now()) {
		return nil, nil
	}
	return &p, nil
}

// Len counts live states with SCAN.
func (s *PendingStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count authorization states: %w", err)
	}
	return n, nil
}
