package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/hradmin/internal/errors"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "hradmin")
	store := NewFileStore(dir)

	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token, "missing file means no credential")

	require.NoError(t, store.Save(ctx, "abc"))

	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	var entries map[string]string
	require.NoError(t, json.Unmarshal(raw, &entries))
	assert.Equal(t, map[string]string{Key: "abc"}, entries)

	require.NoError(t, store.Save(ctx, "def"))
	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "def", token)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx), "clearing twice is fine")

	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestFileStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	dir := filepath.Join(t.TempDir(), "nested", "hradmin")
	store := NewFileStore(dir)
	require.NoError(t, store.Save(context.Background(), "abc"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(dir, ".credentials-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(store.Path(), []byte("not json"), 0o600))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCredentialStore))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("abc")

	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, store.Clear(ctx))
	assert.Empty(t, store.Token())

	store.Fail = fmt.Errorf("disk full")
	assert.Error(t, store.Save(ctx, "x"))
	assert.Empty(t, store.Token())
}
