package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/audiohook-bridge/internal/observability"
	"github.com/antoniostano/audiohook-bridge/internal/secrets"
)

// ErrMalformedSecret is returned when the token secret payload lacks
// access_token or expiry.
var ErrMalformedSecret = errors.New("token secret payload is missing access_token or expiry")

// SecretReader is the part of a secret store the provider needs.
type SecretReader interface {
	Access(ctx context.Context, name string) ([]byte, error)
}

// TokenSource yields a fresh access token on every call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ProjectSource reports the project the ambient credentials belong to.
type ProjectSource interface {
	ProjectID(ctx context.Context) (string, error)
}

type CredentialOptions struct {
	// SecretPath selects secret mode. Empty means ambient credentials.
	SecretPath   string
	Store        SecretReader
	Ambient      TokenSource
	QuotaProject string
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Now          func() time.Time
}

type cachedToken struct {
	value    string
	expiryMS int64
}

// CredentialProvider hands out bearer tokens for the dialogue service. One
// instance is shared by every call; at most one refresh runs at a time.
type CredentialProvider struct {
	mu sync.Mutex

	secretPath   string
	store        SecretReader
	ambient      TokenSource
	quotaProject string
	metrics      *observability.Metrics
	log          *zap.Logger
	now          func() time.Time

	cached *cachedToken
}

func NewCredentialProvider(opts CredentialOptions) (*CredentialProvider, error) {
	if opts.SecretPath != "" && opts.Store == nil {
		return nil, errors.New("secret token path configured without a secret store")
	}
	if opts.SecretPath == "" && opts.Ambient == nil {
		opts.Ambient = NewADCSource()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CredentialProvider{
		secretPath:   opts.SecretPath,
		store:        opts.Store,
		ambient:      opts.Ambient,
		quotaProject: opts.QuotaProject,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		now:          opts.Now,
	}, nil
}

// GetToken returns a token valid at the time of the call.
func (p *CredentialProvider) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.secretPath == "" {
		tok, err := p.ambient.Token(ctx)
		if err != nil {
			p.metrics.TokenFetch("ambient", "error")
			return "", fmt.Errorf("ambient credentials: %w", err)
		}
		p.metrics.TokenFetch("ambient", "ok")
		return tok, nil
	}

	if p.cached != nil && p.cached.expiryMS > p.now().UnixMilli() {
		return p.cached.value, nil
	}

	p.log.Info("auth token missing or expired, fetching from secret store")
	tok, err := p.fetchSecretToken(ctx)
	if err != nil {
		p.cached = nil
		p.metrics.TokenFetch("secret", "error")
		p.log.Error("failed to load auth token from secret store", zap.Error(err))
		return "", err
	}
	p.cached = tok
	p.metrics.TokenFetch("secret", "ok")
	return tok.value, nil
}

// QuotaProject returns the project billed for dialogue requests, or "" when
// none is known.
func (p *CredentialProvider) QuotaProject(ctx context.Context) string {
	if p.quotaProject != "" {
		return p.quotaProject
	}
	ps, ok := p.ambient.(ProjectSource)
	if !ok {
		return ""
	}
	id, err := ps.ProjectID(ctx)
	if err != nil {
		p.log.Debug("ambient project id unavailable", zap.Error(err))
		return ""
	}
	return id
}

func (p *CredentialProvider) fetchSecretToken(ctx context.Context) (*cachedToken, error) {
	name := secrets.VersionedName(p.secretPath)
	payload, err := p.store.Access(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch token secret %s: %w", name, err)
	}

	var body struct {
		AccessToken *string  `json:"access_token"`
		Expiry      *float64 `json:"expiry"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
	if body.AccessToken == nil || body.Expiry == nil {
		return nil, ErrMalformedSecret
	}
	return &cachedToken{value: *body.AccessToken, expiryMS: int64(*body.Expiry)}, nil
}
