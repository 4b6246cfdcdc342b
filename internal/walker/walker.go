// Package walker enumerates candidate files in a live working tree.
//
// A Tree yields slash-separated, project-relative paths and serves file
// content for fingerprinting. Ignore rules are read per enumeration pass,
// never cached globally, so concurrent runs against different trees cannot
// observe each other's ignore state.
package walker

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Options configures one live-tree enumerator.
type Options struct {
	// Root is the project root all yielded paths are relative to.
	Root string
	// Dir scopes the walk to a subdirectory of Root ("." walks everything).
	// Yielded paths still carry the Dir prefix.
	Dir string
	// IgnoreHidden prunes dot-files and dot-directories.
	IgnoreHidden bool
	// UseGitignore honors .gitignore files found anywhere under Root.
	UseGitignore bool
}

// Tree is a restartable enumerator over a live working tree.
type Tree struct {
	opts Options
}

// New creates a live-tree enumerator. The walk happens on each Walk call;
// ignore files are re-read every pass.
func New(opts Options) *Tree {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Tree{opts: opts}
}

// Walk calls fn with every candidate file path, in filesystem order.
// Returning an error from fn aborts the walk.
func (t *Tree) Walk(fn func(path string) error) error {
	var ignore gitignore.Matcher
	if t.opts.UseGitignore {
		patterns, err := gitignore.ReadPatterns(osfs.New(t.opts.Root), nil)
		if err != nil {
			return fmt.Errorf("read ignore patterns under %s: %w", t.opts.Root, err)
		}
		ignore = gitignore.NewMatcher(patterns)
	}

	start := filepath.Join(t.opts.Root, filepath.FromSlash(t.opts.Dir))
	// Naming a hidden directory is an explicit opt-in; pruning applies
	// only below the start.
	startRel := filepath.ToSlash(filepath.Clean(t.opts.Dir))
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", p, err)
		}

		rel, err := filepath.Rel(t.opts.Root, p)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if name == ".git" {
				return filepath.SkipDir
			}
			if t.opts.IgnoreHidden && strings.HasPrefix(name, ".") && rel != startRel {
				return filepath.SkipDir
			}
			if ignore != nil && ignore.Match(strings.Split(rel, "/"), true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if t.opts.IgnoreHidden && strings.HasPrefix(name, ".") {
			return nil
		}
		if ignore != nil && ignore.Match(strings.Split(rel, "/"), false) {
			return nil
		}
		return fn(rel)
	})
}

// Open serves the content of a previously yielded path.
func (t *Tree) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(t.opts.Root, filepath.FromSlash(path))) // #nosec G304 - path comes from our own walk
	if err != nil {
		return nil, err
	}
	return f, nil
}
