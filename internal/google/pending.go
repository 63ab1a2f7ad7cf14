package google

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultStateTTL bounds how long a consent URL stays usable.
const DefaultStateTTL = 10 * time.Minute

// PendingAuthorization correlates an issued consent URL with its callback.
type PendingAuthorization struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (p *PendingAuthorization) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// PendingStore keeps in-flight authorizations keyed by state.
//
// Take returns the entry and removes it atomically so a state value can be
// consumed at most once. It returns (nil, nil) for unknown or expired states.
type PendingStore interface {
	Put(ctx context.Context, p *PendingAuthorization) error
	Take(ctx context.Context, state string) (*PendingAuthorization, error)
	Len(ctx context.Context) (int, error)
}

// MemoryPendingStore is a process-local PendingStore with a background
// sweeper for abandoned entries.
type MemoryPendingStore struct {
	states map[string]*PendingAuthorization
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryPendingStore creates a store and starts its cleanup loop.
// Call Stop to end the loop.
func NewMemoryPendingStore(logger *slog.Logger) *MemoryPendingStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &MemoryPendingStore{
		states: make(map[string]*PendingAuthorization),
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
	}

	go s.cleanup(time.Minute)

	return s
}

// Put saves an authorization state.
func (s *MemoryPendingStore) Put(_ context.Context, p *PendingAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[p.State] = p
	s.logger.Debug("Saved authorization state",
		"expires_at", p.ExpiresAt,
		"pending", len(s.states),
	)
	return nil
}

// Take retrieves and deletes an authorization state.
func (s *MemoryPendingStore) Take(_ context.Context, state string) (*PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.states[state]
	if !ok {
		return nil, nil
	}
	delete(s.states, state)

	if p.Expired(s.now()) {
		s.logger.Debug("Authorization state expired", "created_at", p.CreatedAt)
		return nil, nil
	}
	return p, nil
}

// Len returns the number of stored states, expired ones included until swept.
func (s *MemoryPendingStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states), nil
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (s *MemoryPendingStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryPendingStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryPendingStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deleted := 0
	for state, p := range s.states {
		if p.Expired(now) {
			delete(s.states, state)
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Debug("Cleaned up authorization states", "states_deleted", deleted)
	}
}
