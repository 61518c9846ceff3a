package secrets

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore keeps secret versions in process memory. Used for local runs
// and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	versions map[string][][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{versions: make(map[string][][]byte)}
}

func (s *InMemoryStore) AddVersion(ctx context.Context, secret string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	secret, _, err := SplitName(secret)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[secret] = append(s.versions[secret], append([]byte(nil), payload...))
	return versionName(secret, int64(len(s.versions[secret]))), nil
}

func (s *InMemoryStore) Access(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	secret, version, err := SplitName(name)
	if err != nil {
		return nil, err
	}
	n, err := numericVersion(version)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.versions[secret]
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if n == 0 {
		n = int64(len(all))
	}
	if n > int64(len(all)) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), all[n-1]...), nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
