package google

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPending(state string, ttl time.Duration) *PendingAuthorization {
	now := time.Now()
	return &PendingAuthorization{
		State:        state,
		CodeVerifier: "verifier-" + state,
		RedirectURI:  testRedirectURI,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

func TestMemoryPendingStore_TakeOnce(t *testing.T) {
	s := NewMemoryPendingStore(nil)
	defer s.Stop()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newPending("abc", time.Minute)))

	p, err := s.Take(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "verifier-abc", p.CodeVerifier)

	p, err = s.Take(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, p, "state must be consumed by the first Take")
}

func TestMemoryPendingStore_Unknown(t *testing.T) {
	s := NewMemoryPendingStore(nil)
	defer s.Stop()

	p, err := s.Take(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemoryPendingStore_Expired(t *testing.T) {
	s := NewMemoryPendingStore(nil)
	defer s.Stop()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newPending("old", -time.Second)))

	p, err := s.Take(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, p)

	n, _ := s.Len(ctx)
	assert.Equal(t, 0, n, "expired entry is removed on Take")
}

func TestMemoryPendingStore_CleanupExpired(t *testing.T) {
	s := NewMemoryPendingStore(nil)
	defer s.Stop()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newPending("old", -time.Second)))
	require.NoError(t, s.Put(ctx, newPending("fresh", time.Minute)))

	s.cleanupExpired()

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, _ := s.Take(ctx, "fresh")
	assert.NotNil(t, p)
}

func TestMemoryPendingStore_ConcurrentTake(t *testing.T) {
	s := NewMemoryPendingStore(nil)
	defer s.Stop()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newPending("race", time.Minute)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, _ := s.Take(ctx, "race"); p != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryPendingStore_StopTwice(t *testing.T) {
	s := NewMemoryPendingStore(nil)
	s.Stop()
	s.Stop()
}
