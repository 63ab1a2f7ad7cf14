package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// FileStore keeps the token record in a single JSON file.
type FileStore struct {
	path  string
	codec *Codec
	mu    sync.RWMutex
}

// NewFileStore creates a store backed by path. enc may be nil.
func NewFileStore(path string, enc *TokenEncryption) *FileStore {
	return &FileStore{
		path:  path,
		codec: NewCodec(enc),
	}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record. Returns (nil, nil) if the file does not exist.
func (s *FileStore) Load(_ context.Context) (*TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: err}
	}

	rec, err := s.codec.Decode(data)
	if err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: err}
	}
	return rec, nil
}

// Save writes the record atomically (write-to-temp + rename) with 0600
// permissions. Never logs token values.
func (s *FileStore) Save(_ context.Context, rec *TokenRecord) error {
	if rec == nil {
		return &StorageError{Op: "save", Path: s.path, Err: errors.New("nil record")}
	}
	c := rec.Clone()
	c.UpdatedAt = time.Now().UTC()

	data, err := s.codec.Encode(c)
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Clear deletes the record. A missing file is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "clear", Path: s.path, Err: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing: %w", err)
	}

	// Flush before rename so a crash cannot leave a partial record at path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming: %w", err)
	}

	success = true
	return nil
}
