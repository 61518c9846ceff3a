package secrets

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("secret version not found")
	ErrInvalidName = errors.New("invalid secret name")
)

// Store reads secret payloads by versioned resource name, for example
// "projects/p/secrets/token/versions/latest".
type Store interface {
	Access(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// Writer appends a new version to a secret and returns its versioned name.
type Writer interface {
	AddVersion(ctx context.Context, secret string, payload []byte) (string, error)
}
