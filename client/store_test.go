package client_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/goliatone/go-fitauth/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fittrack", "credentials.json")

	store, err := client.NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())

	creds, err := store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())

	want := client.Credentials{Token: "tok-1", RefreshToken: "rt-1"}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"refreshToken": "rt-1"`)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	got, err = store.Load()
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestFileStore_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	dir := filepath.Join(t.TempDir(), "fittrack")
	store, err := client.NewFileStore(filepath.Join(dir, "credentials.json"))
	require.NoError(t, err)

	require.NoError(t, store.Save(client.Credentials{Token: "tok-1", RefreshToken: "rt-1"}))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	store, err := client.NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := client.NewMemoryStore(client.Credentials{Token: "tok-1"})

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.Token)

	require.NoError(t, store.Save(client.Credentials{Token: "tok-2", RefreshToken: "rt-2"}))
	got, _ = store.Load()
	assert.Equal(t, "rt-2", got.RefreshToken)

	require.NoError(t, store.Clear())
	got, _ = store.Load()
	assert.True(t, got.Empty())
}
