package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/ecgdrive/internal/credentials"
)

// Verify interface compliance
var _ credentials.Store = (*TokenStore)(nil)

const tokenKey = "token"

// TokenStore implements credentials.Store on a single Redis key.
type TokenStore struct {
	client *redis.Client
	key    string
	codec  *credentials.Codec
}

// NewTokenStore creates a token store under prefix. enc may be nil.
func NewTokenStore(client *redis.Client, prefix string, enc *credentials.TokenEncryption) *TokenStore {
	return &TokenStore{
		client: client,
		key:    prefix + tokenKey,
		codec:  credentials.NewCodec(enc),
	}
}

// Load returns the stored record, or nil if none exists.
func (s *TokenStore) Load(ctx context.Context) (*credentials.TokenRecord, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	rec, err := s.codec.Decode(data)
	if err != nil {
		return nil, &credentials.StorageError{Op: "load", Path: s.key, Err: err}
	}
	return rec, nil
}

// Save replaces the stored record. Records never expire in Redis; the
// refresh token outlives the access token expiry.
func (s *TokenStore) Save(ctx context.Context, rec *credentials.TokenRecord) error {
	if rec == nil {
		return &credentials.StorageError{Op: "save", Path: s.key, Err: errors.New("nil record")}
	}

	c := rec.Clone()
	c.UpdatedAt = time.Now().UTC()

	data, err := s.codec.Encode(c)
	if err != nil {
		return &credentials.StorageError{Op: "save", Path: s.key, Err: err}
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Clear deletes the stored record. Deleting a missing key is not an error.
func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
