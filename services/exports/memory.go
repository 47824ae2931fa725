package exportsvc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core"
)

// MemoryStore keeps files in memory. It serves tests and deployments without S3;
// its URLs are not downloadable.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ core.FileStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading content")
	}
	s.mu.Lock()
	s.files[key] = content
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) URL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.files[key]; !ok {
		return "", errors.Errorf("file %s not found", key)
	}
	return fmt.Sprintf("memory://%s?ttl=%s", key, ttl), nil
}

// Get returns a stored file's content.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.files[key]
	return content, ok
}
