// Package resolver turns declared parts plus an enumerator into concrete
// per-part member sets.
//
// The enumerator is consumed in a single streaming pass; every yielded path
// is evaluated against every part. Parts are bounded by the config and files
// by the project, so the files x parts product is acceptable and keeps the
// pass restart-free.
package resolver

import (
	"fmt"
	"path"
	"strings"

	"git.home.luguber.info/inful/parts/internal/config"
)

// Enumerator yields candidate project-relative paths, one pass per call.
type Enumerator interface {
	Walk(fn func(path string) error) error
}

// Membership is one part's resolved member set, in enumeration order.
type Membership struct {
	Part  *config.Part
	Files []string
}

// Resolve runs one enumeration pass and assigns every path to each part
// that selects it. Parts selecting nothing get an empty member set, not an
// error. Overlap is fine: a path selected by several parts is recorded in
// each of them independently.
func Resolve(enum Enumerator, parts []*config.Part) ([]Membership, error) {
	out := make([]Membership, len(parts))
	for i, p := range parts {
		out[i] = Membership{Part: p}
	}

	err := enum.Walk(func(p string) error {
		for i := range out {
			if Eligible(out[i].Part, p) {
				out[i].Files = append(out[i].Files, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate files: %w", err)
	}
	return out, nil
}

// Eligible reports whether a project-relative path belongs to the part:
// inside the part's directory, not hidden when the part ignores hidden
// files, and selected by the part's compiled rules. Hidden filtering looks
// only at components below the part's directory, so a part may explicitly
// scope itself to a hidden directory. It is the single membership
// predicate, shared by resolution and by the touched-paths optimization so
// the two can never disagree.
func Eligible(p *config.Part, file string) bool {
	rest, ok := underDir(p.Directory, file)
	if !ok {
		return false
	}
	if p.IgnoreHidden && hasHiddenComponent(rest) {
		return false
	}
	return p.Matcher().Match(file)
}

// underDir reports whether file lies inside dir, returning the remainder
// of the path below it.
func underDir(dir, file string) (string, bool) {
	dir = path.Clean(dir)
	if dir == "." || dir == "" {
		return file, true
	}
	if !strings.HasPrefix(file, dir+"/") {
		return "", false
	}
	return file[len(dir)+1:], true
}

func hasHiddenComponent(file string) bool {
	for _, seg := range strings.Split(file, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
