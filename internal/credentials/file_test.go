package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *TokenRecord {
	return &TokenRecord{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Scopes:       []string{"https://www.googleapis.com/auth/drive.file"},
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"), nil)

	rec, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFileStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store := NewFileStore(path, nil)

	require.NoError(t, store.Save(ctx, sampleRecord()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ya29.access", rec.AccessToken)
	assert.Equal(t, "1//refresh", rec.RefreshToken)
	assert.False(t, rec.UpdatedAt.IsZero())

	require.NoError(t, store.Clear(ctx))
	rec, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Clearing twice is fine
	require.NoError(t, store.Clear(ctx))
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "token.json"), nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, sampleRecord()))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "token.json", entries[0].Name())
}

func TestFileStore_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{{{"},
		{"unknown version", `{"version": 7, "token": {"access_token": "a"}}`},
		{"no token", `{"version": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			rec, err := NewFileStore(path, nil).Load(context.Background())
			assert.Nil(t, rec)

			var storageErr *StorageError
			require.True(t, errors.As(err, &storageErr), "expected StorageError, got %v", err)
			assert.Equal(t, "load", storageErr.Op)
			assert.Equal(t, path, storageErr.Path)
		})
	}
}

func TestFileStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "token.json")

	key, err := GenerateEncryptionKey()
	require.NoError(t, err)
	enc, err := NewTokenEncryption(key)
	require.NoError(t, err)

	store := NewFileStore(path, enc)
	require.NoError(t, store.Save(ctx, sampleRecord()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "ya29.access"), "access token stored in plaintext")
	assert.False(t, strings.Contains(string(raw), "1//refresh"), "refresh token stored in plaintext")

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", rec.AccessToken)

	// Without the key the record is unreadable
	_, err = NewFileStore(path, nil).Load(ctx)
	var storageErr *StorageError
	assert.True(t, errors.As(err, &storageErr))

	// With the wrong key too
	otherKey, _ := GenerateEncryptionKey()
	otherEnc, _ := NewTokenEncryption(otherKey)
	_, err = NewFileStore(path, otherEnc).Load(ctx)
	assert.True(t, errors.As(err, &storageErr))
}

func TestFileStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"), nil)
	require.NoError(t, store.Save(ctx, sampleRecord()))

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- store.Save(ctx, sampleRecord())
		}()
		go func() {
			defer wg.Done()
			rec, err := store.Load(ctx)
			if err == nil && rec == nil {
				err = errors.New("record vanished during concurrent save")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	in := sampleRecord()
	require.NoError(t, store.Save(ctx, in))
	in.AccessToken = "mutated after save"

	rec, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", rec.AccessToken)

	rec.AccessToken = "mutated after load"
	again, _ := store.Load(ctx)
	assert.Equal(t, "ya29.access", again.AccessToken)

	require.NoError(t, store.Clear(ctx))
	rec, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Error(t, store.Save(ctx, nil))
}

func TestStorageError(t *testing.T) {
	inner := errors.New("boom")
	err := &StorageError{Op: "load", Path: "/tmp/token.json", Err: inner}

	assert.Equal(t, "credentials: load /tmp/token.json: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	noPath := &StorageError{Op: "save", Err: inner}
	assert.Equal(t, "credentials: save: boom", noPath.Error())
}
