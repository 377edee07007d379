package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStore_StoreAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	store, err := NewCredentialStore(path, "passphrase")
	require.NoError(t, err)

	require.NoError(t, store.Store("api", "secret-value"))

	value, err := store.Get("api")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", value)
	assert.ElementsMatch(t, []string{"api"}, store.List())
}

func TestCredentialStore_EncryptsAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	store, err := NewCredentialStore(path, "passphrase")
	require.NoError(t, err)
	require.NoError(t, store.Store("api", "secret-value"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "secret-value"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCredentialStore_ReopenWithSamePassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	first, err := NewCredentialStore(path, "passphrase")
	require.NoError(t, err)
	require.NoError(t, first.Store("api", "secret-value"))

	second, err := NewCredentialStore(path, "passphrase")
	require.NoError(t, err)

	value, err := second.Get("api")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", value)
}

func TestCredentialStore_WrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	first, err := NewCredentialStore(path, "passphrase")
	require.NoError(t, err)
	require.NoError(t, first.Store("api", "secret-value"))

	second, err := NewCredentialStore(path, "other")
	require.NoError(t, err)

	_, err = second.Get("api")
	assert.Error(t, err)
}

func TestCredentialStore_Delete(t *testing.T) {
	store, err := NewCredentialStore(filepath.Join(t.TempDir(), "creds.json"), "")
	require.NoError(t, err)

	require.NoError(t, store.Store("api", "v"))
	require.NoError(t, store.Delete("api"))

	_, err = store.Get("api")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
	assert.ErrorIs(t, store.Delete("api"), ErrCredentialNotFound)
}

func TestCredentialStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewCredentialStore(path, "passphrase")
	assert.Error(t, err)
}
