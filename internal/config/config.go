// Package config loads part declarations from YAML or TOML files.
//
// A configuration file is a mapping whose keys are part names, plus an
// optional "default" key naming the part used when a command is invoked
// without one. Because "default" is reserved, a part cannot be named that.
//
// A config value may address a table nested inside a larger document using
// the form "path:key.key", e.g. "pyproject.toml:tool.parts". All rules are
// compiled at load time, so malformed patterns surface here, naming the
// offending part and rule, before any resolution or fingerprinting starts.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/parts/internal/matcher"
)

const (
	splitPath = ":"
	splitKeys = "."
)

// Part is one declared part: a name plus its file selection rules and walk
// settings.
type Part struct {
	Name           string
	Directory      string
	IgnoreHidden   bool
	UseGitignore   bool
	Globs          []string
	Regexes        []string
	ExcludeGlobs   []string
	ExcludeRegexes []string

	set *matcher.Set
}

// Matcher returns the compiled selection rule set for the part.
func (p *Part) Matcher() *matcher.Set { return p.set }

// RuleHash identifies the part's selection rules and walk settings. A
// recorded digest is only comparable while the hash matches: a part whose
// rules changed selects a different file set even from an identical tree.
func (p *Part) RuleHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "directory=%s\nignore_hidden=%t\nuse_gitignore=%t\n",
		p.Directory, p.IgnoreHidden, p.UseGitignore)
	for _, pat := range p.Globs {
		fmt.Fprintf(h, "glob=%s\n", pat)
	}
	for _, pat := range p.Regexes {
		fmt.Fprintf(h, "regex=%s\n", pat)
	}
	for _, pat := range p.ExcludeGlobs {
		fmt.Fprintf(h, "exclude_glob=%s\n", pat)
	}
	for _, pat := range p.ExcludeRegexes {
		fmt.Fprintf(h, "exclude_regex=%s\n", pat)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// File is a loaded configuration: the parts in declaration order plus the
// optional default part name.
type File struct {
	// Source is the config value the file was loaded from, in "path" or
	// "path:key.key" form.
	Source string
	// Path is the file path component of Source.
	Path string
	// Keys is the key path component of Source, empty when loading a
	// whole document.
	Keys []string
	// Default names the part used when no part argument is given.
	Default string
	// Parts holds every declared part. YAML configs preserve declaration
	// order; TOML configs are ordered by name.
	Parts []Part
}

// Part returns the named part, or the default part when name is empty.
func (f *File) Part(name string) (*Part, error) {
	if name == "" {
		if f.Default == "" {
			return nil, fmt.Errorf("no part given and config declares no default")
		}
		name = f.Default
	}
	for i := range f.Parts {
		if f.Parts[i].Name == name {
			return &f.Parts[i], nil
		}
	}
	return nil, &UnknownPartError{Name: name}
}

// Names returns part names in report order.
func (f *File) Names() []string {
	names := make([]string, len(f.Parts))
	for i := range f.Parts {
		names[i] = f.Parts[i].Name
	}
	return names
}

// SplitPathAndKeys splits a config value into its file path and key path.
//
//	SplitPathAndKeys(".parts.yaml")               -> ".parts.yaml", nil
//	SplitPathAndKeys("pyproject.toml:tool.parts") -> "pyproject.toml", ["tool","parts"]
func SplitPathAndKeys(value string) (string, []string) {
	path, rest, ok := strings.Cut(value, splitPath)
	if !ok {
		return value, nil
	}
	return path, strings.Split(rest, splitKeys)
}

// partSpec is the on-disk shape of one part table.
type partSpec struct {
	Directory      string   `yaml:"directory" toml:"directory"`
	IgnoreHidden   *bool    `yaml:"ignore_hidden" toml:"ignore_hidden"`
	UseGitignore   *bool    `yaml:"use_gitignore" toml:"use_gitignore"`
	Globs          []string `yaml:"globs" toml:"globs"`
	Regexes        []string `yaml:"regexes" toml:"regexes"`
	ExcludeGlobs   []string `yaml:"exclude_globs" toml:"exclude_globs"`
	ExcludeRegexes []string `yaml:"exclude_regexes" toml:"exclude_regexes"`
}

func (s *partSpec) toPart(name string) (Part, error) {
	p := Part{
		Name:           name,
		Directory:      s.Directory,
		IgnoreHidden:   true,
		UseGitignore:   true,
		Globs:          s.Globs,
		Regexes:        s.Regexes,
		ExcludeGlobs:   s.ExcludeGlobs,
		ExcludeRegexes: s.ExcludeRegexes,
	}
	if p.Directory == "" {
		p.Directory = "."
	}
	if s.IgnoreHidden != nil {
		p.IgnoreHidden = *s.IgnoreHidden
	}
	if s.UseGitignore != nil {
		p.UseGitignore = *s.UseGitignore
	}

	set, err := matcherCompile(p)
	if err != nil {
		return Part{}, &PartError{Part: name, Err: err}
	}
	p.set = set
	return p, nil
}

func matcherCompile(p Part) (*matcher.Set, error) {
	return matcher.Compile(
		rules(matcher.KindGlob, p.Globs, matcher.KindRegex, p.Regexes),
		rules(matcher.KindGlob, p.ExcludeGlobs, matcher.KindRegex, p.ExcludeRegexes),
	)
}

func rules(k1 matcher.Kind, p1 []string, k2 matcher.Kind, p2 []string) []matcher.Rule {
	out := make([]matcher.Rule, 0, len(p1)+len(p2))
	for _, p := range p1 {
		out = append(out, matcher.Rule{Kind: k1, Pattern: p})
	}
	for _, p := range p2 {
		out = append(out, matcher.Rule{Kind: k2, Pattern: p})
	}
	return out
}

// assemble validates raw name/spec pairs and builds the final File.
func assemble(source, path string, keys []string, defaultName string, names []string, specs map[string]*partSpec) (*File, error) {
	f := &File{
		Source:  source,
		Path:    path,
		Keys:    keys,
		Default: defaultName,
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("config %s: part with empty name", source)
		}
		if _, dup := seen[name]; dup {
			return nil, &DuplicatePartError{Name: name}
		}
		seen[name] = struct{}{}

		part, err := specs[name].toPart(name)
		if err != nil {
			return nil, err
		}
		f.Parts = append(f.Parts, part)
	}

	if f.Default != "" {
		if _, ok := seen[f.Default]; !ok {
			return nil, fmt.Errorf("config %s: default part %q is not declared", source, f.Default)
		}
	}
	return f, nil
}
