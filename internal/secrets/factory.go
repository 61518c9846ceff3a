package secrets

import (
	"context"
	"fmt"

	"github.com/antoniostano/audiohook-bridge/internal/config"
)

// NewStore builds the secret backend selected by configuration.
func NewStore(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.SecretBackend {
	case config.SecretBackendPostgres:
		return NewPostgresStore(ctx, cfg.SecretDatabaseURL)
	case config.SecretBackendFile:
		return NewFileStore(cfg.SecretFileRoot), nil
	case config.SecretBackendMemory:
		return NewInMemoryStore(), nil
	case config.SecretBackendGCP, "":
		return NewGCPStore(ctx)
	default:
		return nil, fmt.Errorf("unsupported secret backend %q", cfg.SecretBackend)
	}
}
