package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	storeDirMode  = 0o700
	secretFileMod = 0o600
)

// FileStore lays secrets out as <root>/<secret>/<version> files, so a
// mounted secret volume can serve the token payload.
type FileStore struct {
	root string
	mu   sync.RWMutex
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: filepath.Clean(root)}
}

func (s *FileStore) AddVersion(ctx context.Context, secret string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	secret, _, err := SplitName(secret)
	if err != nil {
		return "", err
	}
	dir, err := s.dirFor(secret)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, storeDirMode); err != nil {
		return "", fmt.Errorf("create secret directory: %w", err)
	}
	latest, err := latestFileVersion(dir)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	next := latest + 1
	path := filepath.Join(dir, strconv.FormatInt(next, 10))
	if err := os.WriteFile(path, payload, secretFileMod); err != nil {
		return "", fmt.Errorf("write secret %q: %w", secret, err)
	}
	return versionName(secret, next), nil
}

func (s *FileStore) Access(ctx context.Context, name string) ([]byte, error) {
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
	dir, err := s.dirFor(secret)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if n == 0 {
		n, err = latestFileVersion(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, name)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, strconv.FormatInt(n, 10)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read secret %q: %w", name, err)
	}
	return data, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) dirFor(secret string) (string, error) {
	cleaned := filepath.Clean(strings.TrimSpace(secret))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") || cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, secret)
	}
	return filepath.Join(s.root, cleaned), nil
}

func latestFileVersion(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("list secret versions: %w", err)
	}
	var latest int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		if n > latest {
			latest = n
		}
	}
	if latest == 0 {
		return 0, ErrNotFound
	}
	return latest, nil
}
