// Package fingerprint folds a part's member files into one deterministic
// digest.
//
// Member paths are sorted before hashing, so the digest is independent of
// enumeration order. Each member contributes its path, its byte length and
// a streamed content hash, which makes the digest sensitive to edits,
// renames, truncation and membership changes alike. The empty member set
// has a well-defined digest.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
)

// digestDomain seeds every digest so the empty-set value is stable and
// versioned; bump it when the accumulation scheme changes.
const digestDomain = "parts/fingerprint/1\n"

// Size is the digest length in bytes.
const Size = sha256.Size

// Digest is an aggregate content fingerprint for one part.
type Digest [Size]byte

// Hex returns the lowercase hex form used in snapshots and reports.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// Equal reports whether two digests are identical.
func (d Digest) Equal(other Digest) bool { return d == other }

// Source serves the content of member files.
type Source interface {
	Open(path string) (io.ReadCloser, error)
}

// FileError reports a member file that could not be read. It aborts the
// part's fingerprint: treating unreadable content as empty would let real
// changes masquerade as "unchanged".
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("fingerprint %s: %v", e.Path, e.Err) }
func (e *FileError) Unwrap() error { return e.Err }

// Compute folds the given member files into a Digest. Content is streamed
// per file, never buffered whole; files may be arbitrarily large.
func Compute(src Source, files []string) (Digest, error) {
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)

	acc := sha256.New()
	io.WriteString(acc, digestDomain)

	for _, path := range sorted {
		fh := sha256.New()
		rc, err := src.Open(path)
		if err != nil {
			return Digest{}, &FileError{Path: path, Err: err}
		}
		n, err := io.Copy(fh, rc)
		closeErr := rc.Close()
		if err != nil {
			return Digest{}, &FileError{Path: path, Err: err}
		}
		if closeErr != nil {
			return Digest{}, &FileError{Path: path, Err: closeErr}
		}
		fmt.Fprintf(acc, "%s:%d:%x\n", path, n, fh.Sum(nil))
	}

	var d Digest
	copy(d[:], acc.Sum(nil))
	return d, nil
}

// Empty returns the digest of the empty member set.
func Empty() Digest {
	d, _ := Compute(nil, nil)
	return d
}
