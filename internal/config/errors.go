package config

import (
	"errors"
	"fmt"
)

// ErrNoConfigFound is returned by Discover when none of the well-known
// config locations yields a loadable file.
var ErrNoConfigFound = errors.New("no parts config file found, use verbose output (-v) for details")

var errEmptyName = errors.New("part name is empty")

// PartError wraps a rule compilation failure with the part it belongs to.
type PartError struct {
	Part string
	Err  error
}

func (e *PartError) Error() string { return fmt.Sprintf("part %q: %v", e.Part, e.Err) }
func (e *PartError) Unwrap() error { return e.Err }

// DuplicatePartError reports a part name declared more than once.
type DuplicatePartError struct {
	Name string
}

func (e *DuplicatePartError) Error() string {
	return fmt.Sprintf("part %q is declared more than once", e.Name)
}

// UnknownPartError reports a part name absent from the configuration.
type UnknownPartError struct {
	Name string
}

func (e *UnknownPartError) Error() string { return fmt.Sprintf("unknown part name %q", e.Name) }

// KeyError reports a missing key while addressing into a larger document.
type KeyError struct {
	Path string
	Key  string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("file %q does not contain key %q", e.Path, e.Key)
}

// NotTableError reports that key addressing ran into a non-table value.
type NotTableError struct {
	Path string
}

func (e *NotTableError) Error() string {
	return fmt.Sprintf("file %q does not contain nested tables as expected", e.Path)
}
