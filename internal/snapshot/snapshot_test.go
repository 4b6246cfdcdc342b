package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "parts-state.json"))
}

func TestLoadFirstRun(t *testing.T) {
	store := tempStore(t)

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCommitLoadRoundtrip(t *testing.T) {
	store := tempStore(t)

	snap := New()
	snap.Revision = "abc123"
	snap.Parts["src"] = Entry{Digest: "deadbeef", Files: 3, Revision: "abc123", UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.Commit(snap))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, FormatVersion, loaded.Version)
	assert.Equal(t, "abc123", loaded.Revision)
	assert.Equal(t, "deadbeef", loaded.Parts["src"].Digest)
	assert.Equal(t, 3, loaded.Parts["src"].Files)
}

func TestCommitReplacesAtomically(t *testing.T) {
	store := tempStore(t)

	first := New()
	first.Parts["a"] = Entry{Digest: "one"}
	require.NoError(t, store.Commit(first))

	second := New()
	second.Parts["a"] = Entry{Digest: "two"}
	require.NoError(t, store.Commit(second))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "two", loaded.Parts["a"].Digest)

	// No temp or lock residue after a clean commit.
	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.Path() + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"version": 99, "parts": {}}`), 0o644))

	_, err := store.Load()
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 99, fe.Version)
}

func TestLoadRejectsCorruption(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("not json{"), 0o644))

	_, err := store.Load()
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Error(t, fe.Err)
}

func TestCommitRespectsLock(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.WriteFile(store.Path()+".lock", []byte("123\n"), 0o644))

	err := store.Commit(New())
	assert.ErrorIs(t, err, ErrLocked)
}
