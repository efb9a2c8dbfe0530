package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func start(t *testing.T, dir string, opts Options) <-chan string {
	t.Helper()
	got := make(chan string, 16)
	w, err := New(dir, opts, func(_ context.Context, path string) error {
		got <- filepath.Base(path)
		return nil
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return got
}

func expect(t *testing.T, got <-chan string, name string) {
	t.Helper()
	select {
	case n := <-got:
		assert.Equal(t, name, n)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", name)
	}
}

func TestWatcherHandlesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	got := start(t, dir, Options{Pattern: "*.csv", Debounce: 20 * time.Millisecond})
	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.csv"), []byte("po_number\n"), 0o644))

	expect(t, got, "orders.csv")
	select {
	case n := <-got:
		t.Fatalf("unexpected file %s", n)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.csv"), []byte("po_number\n"), 0o644))

	got := start(t, dir, Options{Pattern: "*.csv", Debounce: 10 * time.Millisecond, Existing: true})
	expect(t, got, "old.csv")
}

func TestNewValidates(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{}, nil, nil)
	assert.Error(t, err)

	_, err = New(t.TempDir(), Options{Pattern: "["}, nil, nil)
	assert.Error(t, err)
}
