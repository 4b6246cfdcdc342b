// Package gitrev provides the git-backed enumeration and content backend.
//
// A revision tree satisfies the same Walk/Open surface as the live walker,
// so resolution and fingerprinting are oblivious to which backing store is
// in use. It also answers "which paths differ between two revisions", used
// to skip fingerprinting parts with no touched members.
package gitrev

import (
	"fmt"
	"io"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo wraps an opened git repository.
type Repo struct {
	repo *git.Repository
}

// Open opens the repository containing root, searching upward for .git the
// way git itself does.
func Open(root string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository at %s: %w", root, err)
	}
	return &Repo{repo: repo}, nil
}

// Head returns the commit SHA the repository HEAD points at.
func (r *Repo) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// TreeAt resolves a revision (SHA, branch, tag, "HEAD", ...) to its tree.
func (r *Repo) TreeAt(rev string) (*Tree, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve revision %q: %w", rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree for %s: %w", hash, err)
	}
	return &Tree{commit: hash.String(), tree: tree}, nil
}

// TouchedPaths returns every path that differs between two revisions. Both
// sides of a rename count as touched.
func (r *Repo) TouchedPaths(fromRev, toRev string) ([]string, error) {
	from, err := r.TreeAt(fromRev)
	if err != nil {
		return nil, err
	}
	to, err := r.TreeAt(toRev)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(from.tree, to.tree)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", fromRev, toRev, err)
	}

	seen := make(map[string]struct{}, len(changes))
	var paths []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		paths = append(paths, name)
	}
	for _, ch := range changes {
		add(ch.From.Name)
		add(ch.To.Name)
	}
	return paths, nil
}

// Tree enumerates the files recorded in one revision's tree object.
type Tree struct {
	commit string
	tree   *object.Tree
}

// Commit returns the resolved commit SHA backing this tree.
func (t *Tree) Commit() string { return t.commit }

// Walk calls fn with every tracked path at this revision.
func (t *Tree) Walk(fn func(path string) error) error {
	return t.tree.Files().ForEach(func(f *object.File) error {
		return fn(f.Name)
	})
}

// Open serves blob content for a tracked path.
func (t *Tree) Open(path string) (io.ReadCloser, error) {
	f, err := t.tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("blob %s at %s: %w", path, t.commit, err)
	}
	rc, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob %s at %s: %w", path, t.commit, err)
	}
	return rc, nil
}
