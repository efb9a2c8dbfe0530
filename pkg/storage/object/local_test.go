package object

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/poflow/pkg/interfaces"
)

func exercise(t *testing.T, s interfaces.ObjectStorage) {
	t.Helper()
	ctx := context.Background()
	key := "analytics/heritage/purchase_orders.parquet"

	_, err := s.Get(ctx, key)
	assert.True(t, errors.Is(err, interfaces.ErrObjectNotFound), "get missing: %v", err)
	_, err = s.Head(ctx, key)
	assert.True(t, errors.Is(err, interfaces.ErrObjectNotFound), "head missing: %v", err)
	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, key, strings.NewReader("v1"), interfaces.PutOptions{}))
	require.NoError(t, s.Put(ctx, key, strings.NewReader("version-2"), interfaces.PutOptions{}))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "version-2", string(data))

	info, err := s.Head(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len("version-2")), info.Size)
	assert.Equal(t, key, info.Key)

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "deleting twice is fine")
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorage(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)
	assert.Equal(t, "file", s.Scheme())
	exercise(t, s)

	assert.Equal(t, filepath.Join(s.Root(), "a", "b.parquet"), s.Location("a/b.parquet"))

	// No temp files are left behind after puts.
	require.NoError(t, s.Put(context.Background(), "x/y", strings.NewReader("z"), interfaces.PutOptions{}))
	entries, err := os.ReadDir(filepath.Join(root, "x"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "y", entries[0].Name())
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = s.Put(context.Background(), "../outside", strings.NewReader("x"), interfaces.PutOptions{})
	assert.Error(t, err)
	assert.Empty(t, s.Location("../../etc/passwd"))
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	assert.Equal(t, "memory", s.Scheme())
	exercise(t, s)
}
