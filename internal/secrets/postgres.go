package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps versioned secret payloads in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS secret_versions (
			secret TEXT NOT NULL,
			version BIGINT NOT NULL,
			payload BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (secret, version)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) AddVersion(ctx context.Context, secret string, payload []byte) (string, error) {
	secret, _, err := SplitName(secret)
	if err != nil {
		return "", err
	}

	var version int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO secret_versions (secret, version, payload)
		 SELECT $1, COALESCE(MAX(version), 0) + 1, $2 FROM secret_versions WHERE secret = $1
		 RETURNING version`,
		secret,
		payload,
	).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("add secret version: %w", err)
	}
	return versionName(secret, version), nil
}

func (s *PostgresStore) Access(ctx context.Context, name string) ([]byte, error) {
	secret, version, err := SplitName(name)
	if err != nil {
		return nil, err
	}
	n, err := numericVersion(version)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if n == 0 {
		err = s.pool.QueryRow(ctx,
			`SELECT payload FROM secret_versions WHERE secret = $1 ORDER BY version DESC LIMIT 1`,
			secret,
		).Scan(&payload)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT payload FROM secret_versions WHERE secret = $1 AND version = $2`,
			secret, n,
		).Scan(&payload)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("access secret %q: %w", name, err)
	}
	return payload, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
