package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) <-chan struct{} {
	t.Helper()
	runs := make(chan struct{}, 16)
	w, err := New(Options{Root: root, Debounce: 50 * time.Millisecond}, func(ctx context.Context) error {
		runs <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	return runs
}

func waitRun(t *testing.T, runs <-chan struct{}) {
	t.Helper()
	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("no detection run triggered")
	}
}

func TestWriteTriggersDebouncedRun(t *testing.T) {
	root := t.TempDir()
	runs := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1"), 0o644))
	waitRun(t, runs)
}

func TestNewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	runs := startWatcher(t, root)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitRun(t, runs)

	// Files inside the directory created after Start are seen too.
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.txt"), []byte("v1"), 0o644))
	waitRun(t, runs)
}

func TestStateFileCommitsDoNotRetrigger(t *testing.T) {
	root := t.TempDir()
	state := filepath.Join(root, "state.json")

	runs := make(chan struct{}, 16)
	w, err := New(Options{Root: root, Debounce: 50 * time.Millisecond, StatePath: state}, func(ctx context.Context) error {
		runs <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	// The write/rename/lock sequence a snapshot commit performs must not
	// feed back into the watcher.
	require.NoError(t, os.WriteFile(state+".tmp", []byte("{}"), 0o644))
	require.NoError(t, os.Rename(state+".tmp", state))
	require.NoError(t, os.WriteFile(state+".lock", []byte("1"), 0o644))
	require.NoError(t, os.Remove(state+".lock"))

	select {
	case <-runs:
		t.Fatal("run triggered by state file activity")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1"), 0o644))
	waitRun(t, runs)
}

func TestGitDirIsIgnored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	runs := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0o644))
	select {
	case <-runs:
		t.Fatal("run triggered by .git activity")
	case <-time.After(300 * time.Millisecond):
	}
}
