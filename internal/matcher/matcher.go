// Package matcher compiles part selection rules (globs and regexes) into
// predicates over project-relative paths.
//
// Globs are translated into anchored regular expressions and compiled
// alongside the user-supplied regexes, so a part's whole rule list is
// evaluated through one engine. Compilation happens once, at configuration
// load; matching never fails and performs no I/O.
package matcher

import (
	"fmt"
	"regexp"
)

// Kind discriminates the two selection rule variants.
type Kind string

const (
	KindGlob  Kind = "glob"
	KindRegex Kind = "regex"
)

// Rule is a single selection rule before compilation.
type Rule struct {
	Kind    Kind
	Pattern string
}

// RuleError reports a rule that failed to compile. The part name is attached
// by the config layer, which knows it.
type RuleError struct {
	Rule Rule
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid %s pattern %q: %v", e.Rule.Kind, e.Rule.Pattern, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Set is a compiled include/exclude rule set. A path is a member when it
// matches at least one include rule and no exclude rule.
type Set struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// Compile builds a Set from include and exclude rules. The first rule that
// fails to compile aborts with a *RuleError.
func Compile(include, exclude []Rule) (*Set, error) {
	inc, err := compileRules(include)
	if err != nil {
		return nil, err
	}
	exc, err := compileRules(exclude)
	if err != nil {
		return nil, err
	}
	return &Set{include: inc, exclude: exc}, nil
}

func compileRules(rules []Rule) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(rules))
	for _, r := range rules {
		expr := r.Pattern
		if r.Kind == KindGlob {
			translated, err := globToRegexp(r.Pattern)
			if err != nil {
				return nil, &RuleError{Rule: r, Err: err}
			}
			expr = translated
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, &RuleError{Rule: r, Err: err}
		}
		out = append(out, re)
	}
	return out, nil
}

// Match reports whether a slash-separated relative path belongs to the set.
func (s *Set) Match(path string) bool {
	if !s.matchAny(s.include, path) {
		return false
	}
	return !s.matchAny(s.exclude, path)
}

func (s *Set) matchAny(res []*regexp.Regexp, path string) bool {
	for _, re := range res {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
