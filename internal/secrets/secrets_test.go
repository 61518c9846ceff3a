package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/audiohook-bridge/internal/config"
)

func TestVersionedName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "projects/p/secrets/tok/versions/latest", VersionedName("projects/p/secrets/tok"))
	assert.Equal(t, "projects/p/secrets/tok/versions/latest", VersionedName("projects/p/secrets/tok/"))
	assert.Equal(t, "projects/p/secrets/tok/versions/3", VersionedName("projects/p/secrets/tok/versions/3"))
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		in          string
		wantSecret  string
		wantVersion string
		wantErr     bool
	}{
		{name: "latest", in: "projects/p/secrets/tok/versions/latest", wantSecret: "projects/p/secrets/tok", wantVersion: "latest"},
		{name: "numbered", in: "projects/p/secrets/tok/versions/7", wantSecret: "projects/p/secrets/tok", wantVersion: "7"},
		{name: "unversioned", in: "projects/p/secrets/tok", wantSecret: "projects/p/secrets/tok", wantVersion: "latest"},
		{name: "empty", in: "", wantErr: true},
		{name: "empty version", in: "projects/p/secrets/tok/versions/", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			secret, version, err := SplitName(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantSecret, secret)
			assert.Equal(t, tc.wantVersion, version)
		})
	}
}

func TestInMemoryStoreResolvesLatest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	first, err := store.AddVersion(ctx, "projects/p/secrets/tok", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, "projects/p/secrets/tok/versions/1", first)
	_, err = store.AddVersion(ctx, "projects/p/secrets/tok", []byte("two"))
	require.NoError(t, err)

	got, err := store.Access(ctx, "projects/p/secrets/tok/versions/latest")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	got, err = store.Access(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	_, err = store.Access(ctx, "projects/p/secrets/tok/versions/9")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Access(ctx, "projects/p/secrets/missing/versions/latest")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreVersionsAndPermissions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store := NewFileStore(root)

	_, err := store.AddVersion(ctx, "projects/p/secrets/tok", []byte("one"))
	require.NoError(t, err)
	name, err := store.AddVersion(ctx, "projects/p/secrets/tok", []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, "projects/p/secrets/tok/versions/2", name)

	got, err := store.Access(ctx, VersionedName("projects/p/secrets/tok"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	info, err := os.Stat(filepath.Join(root, "projects/p/secrets/tok/2"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretFileMod), info.Mode().Perm())

	_, err = store.Access(ctx, "projects/p/secrets/none/versions/latest")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	_, err := store.Access(context.Background(), "../escape/versions/latest")
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = store.AddVersion(context.Background(), "/abs/secret", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestNewStoreSelectsLocalBackends(t *testing.T) {
	t.Parallel()

	store, err := NewStore(context.Background(), config.Config{SecretBackend: config.SecretBackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, store)

	store, err = NewStore(context.Background(), config.Config{SecretBackend: config.SecretBackendFile, SecretFileRoot: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = NewStore(context.Background(), config.Config{SecretBackend: "vault"})
	assert.Error(t, err)
}
