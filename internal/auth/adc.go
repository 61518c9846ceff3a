package auth

import (
	"context"
	"fmt"
	"sync"

	gauth "cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ADCSource resolves application-default credentials on first use and asks
// them for a token on every call.
type ADCSource struct {
	mu    sync.Mutex
	creds *gauth.Credentials
}

func NewADCSource() *ADCSource {
	return &ADCSource{}
}

func (s *ADCSource) Token(ctx context.Context) (string, error) {
	creds, err := s.credentials()
	if err != nil {
		return "", err
	}
	tok, err := creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("refresh ambient token: %w", err)
	}
	return tok.Value, nil
}

func (s *ADCSource) ProjectID(ctx context.Context) (string, error) {
	creds, err := s.credentials()
	if err != nil {
		return "", err
	}
	return creds.ProjectID(ctx)
}

func (s *ADCSource) credentials() (*gauth.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds != nil {
		return s.creds, nil
	}
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes: []string{cloudPlatformScope},
	})
	if err != nil {
		return nil, fmt.Errorf("detect default credentials: %w", err)
	}
	s.creds = creds
	return creds, nil
}
