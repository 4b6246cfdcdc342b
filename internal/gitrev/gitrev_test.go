package gitrev

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	dir  string
	repo *git.Repository
	wt   *git.Worktree
}

func initRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &testRepo{dir: dir, repo: repo, wt: wt}
}

func (r *testRepo) write(t *testing.T, path, content string) {
	t.Helper()
	full := filepath.Join(r.dir, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	_, err := r.wt.Add(path)
	require.NoError(t, err)
}

func (r *testRepo) remove(t *testing.T, path string) {
	t.Helper()
	_, err := r.wt.Remove(path)
	require.NoError(t, err)
}

func (r *testRepo) commit(t *testing.T, msg string) string {
	t.Helper()
	h, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return h.String()
}

func TestTreeWalkAndOpen(t *testing.T) {
	tr := initRepo(t)
	tr.write(t, "src/a.go", "package a")
	tr.write(t, "docs/guide.md", "# guide")
	first := tr.commit(t, "initial")

	tr.write(t, "src/a.go", "package a // edited")
	second := tr.commit(t, "edit")

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	tree, err := repo.TreeAt(first)
	require.NoError(t, err)
	assert.Equal(t, first, tree.Commit())

	var paths []string
	require.NoError(t, tree.Walk(func(p string) error {
		paths = append(paths, p)
		return nil
	}))
	sort.Strings(paths)
	assert.Equal(t, []string{"docs/guide.md", "src/a.go"}, paths)

	// Content access is pinned to the revision, not the working tree.
	rc, err := tree.Open("src/a.go")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "package a", string(data))

	newTree, err := repo.TreeAt(second)
	require.NoError(t, err)
	rc, err = newTree.Open("src/a.go")
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "package a // edited", string(data))

	_, err = tree.Open("missing.go")
	assert.Error(t, err)
}

func TestHead(t *testing.T) {
	tr := initRepo(t)
	tr.write(t, "a.txt", "a")
	sha := tr.commit(t, "one")

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, sha, head)
}

func TestTouchedPaths(t *testing.T) {
	tr := initRepo(t)
	tr.write(t, "keep.txt", "same")
	tr.write(t, "edit.txt", "before")
	tr.write(t, "gone.txt", "bye")
	first := tr.commit(t, "first")

	tr.write(t, "edit.txt", "after")
	tr.write(t, "new.txt", "hello")
	tr.remove(t, "gone.txt")
	second := tr.commit(t, "second")

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	touched, err := repo.TouchedPaths(first, second)
	require.NoError(t, err)
	sort.Strings(touched)
	assert.Equal(t, []string{"edit.txt", "gone.txt", "new.txt"}, touched)

	same, err := repo.TouchedPaths(first, first)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestOpenMissingRepo(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.Error(t, err)
}
