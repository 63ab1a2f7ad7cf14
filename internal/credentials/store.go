package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists the token record for the application identity.
//
// Load returns (nil, nil) when no record exists and a *StorageError when a
// record exists but cannot be read back.
type Store interface {
	Load(ctx context.Context) (*TokenRecord, error)
	Save(ctx context.Context, rec *TokenRecord) error
	Clear(ctx context.Context) error
}

// StorageError reports a record that could not be read or written.
type StorageError struct {
	Op   string // "load", "save" or "clear"
	Path string // file path or key; may be empty
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("credentials: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credentials: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *TokenRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored record.
func (s *MemoryStore) Load(_ context.Context) (*TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Clone(), nil
}

// Save replaces the stored record.
func (s *MemoryStore) Save(_ context.Context, rec *TokenRecord) error {
	if rec == nil {
		return &StorageError{Op: "save", Err: fmt.Errorf("nil record")}
	}
	c := rec.Clone()
	c.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = c
	return nil
}

// Clear removes the stored record.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}
