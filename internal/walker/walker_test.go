package walker

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func collect(t *testing.T, tree *Tree) []string {
	t.Helper()
	var got []string
	require.NoError(t, tree.Walk(func(path string) error {
		got = append(got, path)
		return nil
	}))
	sort.Strings(got)
	return got
}

func TestWalkYieldsRelativePaths(t *testing.T) {
	root := makeTree(t, map[string]string{
		"src/a.go":        "package a",
		"src/nested/b.go": "package b",
		"README.md":       "# hi",
	})

	got := collect(t, New(Options{Root: root}))
	assert.Equal(t, []string{"README.md", "src/a.go", "src/nested/b.go"}, got)
}

func TestWalkScopedToDir(t *testing.T) {
	root := makeTree(t, map[string]string{
		"src/a.go":  "a",
		"docs/d.md": "d",
	})

	got := collect(t, New(Options{Root: root, Dir: "src"}))
	assert.Equal(t, []string{"src/a.go"}, got)
}

func TestWalkIgnoreHidden(t *testing.T) {
	root := makeTree(t, map[string]string{
		"visible.txt":        "v",
		".hidden.txt":        "h",
		".hiddendir/sub.txt": "s",
	})

	got := collect(t, New(Options{Root: root, IgnoreHidden: true}))
	assert.Equal(t, []string{"visible.txt"}, got)

	got = collect(t, New(Options{Root: root}))
	assert.Equal(t, []string{".hidden.txt", ".hiddendir/sub.txt", "visible.txt"}, got)
}

func TestWalkHiddenStartDir(t *testing.T) {
	root := makeTree(t, map[string]string{
		".github/workflows/ci.yml": "c",
		".github/.cache/x":         "x",
		"src/a.go":                 "a",
	})

	got := collect(t, New(Options{Root: root, Dir: ".github", IgnoreHidden: true}))
	assert.Equal(t, []string{".github/workflows/ci.yml"}, got)
}

func TestWalkHonorsGitignore(t *testing.T) {
	root := makeTree(t, map[string]string{
		".gitignore":     "vendor/\n*.log\n",
		"main.go":        "m",
		"debug.log":      "x",
		"vendor/dep.go":  "d",
		"src/.gitignore": "generated.go\n",
		"src/real.go":    "r",
		"src/generated.go": "g",
	})

	got := collect(t, New(Options{Root: root, UseGitignore: true, IgnoreHidden: true}))
	assert.Equal(t, []string{"main.go", "src/real.go"}, got)
}

func TestWalkSkipsGitDir(t *testing.T) {
	root := makeTree(t, map[string]string{
		".git/config": "x",
		"a.txt":       "a",
	})

	got := collect(t, New(Options{Root: root}))
	assert.Equal(t, []string{"a.txt"}, got)
}

func TestWalkRestartable(t *testing.T) {
	root := makeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	tree := New(Options{Root: root})

	first := collect(t, tree)
	second := collect(t, tree)
	assert.Equal(t, first, second)
}

func TestOpen(t *testing.T) {
	root := makeTree(t, map[string]string{"src/a.go": "package a"})
	tree := New(Options{Root: root})

	rc, err := tree.Open("src/a.go")
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 32)
	n, _ := rc.Read(buf)
	assert.Equal(t, "package a", string(buf[:n]))

	_, err = tree.Open("missing.go")
	assert.Error(t, err)
}
