package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPStore reads secrets from Google Cloud Secret Manager using ambient
// credentials.
type GCPStore struct {
	client *secretmanager.Client
}

func NewGCPStore(ctx context.Context) (*GCPStore, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &GCPStore{client: client}, nil
}

func (s *GCPStore) Access(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("access secret %q: %w", name, err)
	}
	return resp.GetPayload().GetData(), nil
}

func (s *GCPStore) AddVersion(ctx context.Context, secret string, payload []byte) (string, error) {
	secret, _, err := SplitName(secret)
	if err != nil {
		return "", err
	}
	resp, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  secret,
		Payload: &secretmanagerpb.SecretPayload{Data: payload},
	})
	if err != nil {
		return "", fmt.Errorf("add secret version: %w", err)
	}
	return resp.GetName(), nil
}

func (s *GCPStore) Close() error {
	return s.client.Close()
}
