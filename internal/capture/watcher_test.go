package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "channel closed")
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a path")
		return ""
	}
}

func TestWatchInitialScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IMG_1.JPG"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".IMG_2.jpg"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := Watch(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true, Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "IMG_1.JPG"), next(t, ch))

	cancel()
	for range ch {
	}
}

func TestWatchEmitsNewFilesOnce(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := Watch(ctx, WatchConfig{Roots: []string{dir}, Debounce: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	p := filepath.Join(dir, "clip.mov")
	f, err := os.Create(p)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.Write([]byte("chunk"))
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	assert.Equal(t, p, next(t, ch))
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second emit %q", extra)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatchFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := Watch(ctx, WatchConfig{Roots: []string{dir}, Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	sub := filepath.Join(dir, "2024-06-01")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// give the watcher a moment to pick up the new directory
	time.Sleep(100 * time.Millisecond)
	p := filepath.Join(sub, "IMG_9.heic")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	assert.Equal(t, p, next(t, ch))
}

func TestWatchRequiresRoots(t *testing.T) {
	_, err := Watch(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
