// Package object provides filesystem and in-memory object storage.
package object

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/logflow/poflow/pkg/interfaces"
)

// LocalStorage implements ObjectStorage on the local filesystem.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a storage rooted at root, creating it if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &LocalStorage{root: absRoot}, nil
}

// Scheme returns "file".
func (s *LocalStorage) Scheme() string {
	return "file"
}

// Root returns the absolute root directory.
func (s *LocalStorage) Root() string {
	return s.root
}

// Put writes data to a temporary file and renames it over key, so readers
// never observe a partially written object.
func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader, opts interfaces.PutOptions) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to commit object: %w", err)
	}
	return nil
}

// Get returns a reader for the object.
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, mapNotExist(key, err)
	}
	return f, nil
}

// Head returns object metadata.
func (s *LocalStorage) Head(ctx context.Context, key string) (interfaces.ObjectInfo, error) {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return interfaces.ObjectInfo{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return interfaces.ObjectInfo{}, mapNotExist(key, err)
	}

	return interfaces.ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if an object exists.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Location returns the absolute file path of key.
func (s *LocalStorage) Location(key string) string {
	p, err := s.fullPath(key)
	if err != nil {
		return ""
	}
	return p
}

func (s *LocalStorage) fullPath(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return p, nil
}

func mapNotExist(key string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", key, interfaces.ErrObjectNotFound)
	}
	return fmt.Errorf("failed to access %s: %w", key, err)
}

// MemoryStorage implements ObjectStorage in memory (for testing).
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	meta    map[string]interfaces.ObjectInfo
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		meta:    make(map[string]interfaces.ObjectInfo),
	}
}

// Scheme returns "memory".
func (s *MemoryStorage) Scheme() string {
	return "memory"
}

// Put stores data in memory.
func (s *MemoryStorage) Put(ctx context.Context, key string, data io.Reader, opts interfaces.PutOptions) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	sum := md5.Sum(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	s.meta[key] = interfaces.ObjectInfo{
		Key:          key,
		Size:         int64(len(b)),
		LastModified: time.Now(),
		ETag:         hex.EncodeToString(sum[:]),
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
	}
	return nil
}

// Get returns a reader over a copy of the object.
func (s *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, interfaces.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), b...))), nil
}

// Head returns object metadata.
func (s *MemoryStorage) Head(ctx context.Context, key string) (interfaces.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.meta[key]
	if !ok {
		return interfaces.ObjectInfo{}, fmt.Errorf("%s: %w", key, interfaces.ErrObjectNotFound)
	}
	return info, nil
}

// Delete removes an object.
func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.meta, key)
	return nil
}

// Exists checks if an object exists.
func (s *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Location returns a memory:// address. The query engine cannot read it.
func (s *MemoryStorage) Location(key string) string {
	return "memory://" + key
}
