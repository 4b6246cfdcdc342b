package detect

import (
	"fmt"
	"time"
)

// Status classifies one part's outcome for a run.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusChanged   Status = "changed"
	StatusAdded     Status = "added"
	StatusRemoved   Status = "removed"
)

// Outcome is the classification of a single part.
type Outcome struct {
	Part   string `json:"part"`
	Status Status `json:"status"`
	// OldDigest is set for unchanged, changed and removed parts.
	OldDigest string `json:"old_digest,omitempty"`
	// NewDigest is set for unchanged, changed and added parts.
	NewDigest string `json:"new_digest,omitempty"`
	// Files is the current member count; for removed parts it is the
	// last recorded one.
	Files int `json:"files"`
	// Reused marks digests carried over via the touched-paths shortcut
	// instead of being recomputed.
	Reused bool `json:"reused,omitempty"`
}

// Report is the full classification of one run, ordered by declared part
// order with removed parts appended sorted by name.
type Report struct {
	Outcomes  []Outcome     `json:"outcomes"`
	Revision  string        `json:"revision,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Committed bool          `json:"committed"`
}

// Dirty reports whether any part changed, appeared or disappeared. The CLI
// maps this to its exit code; the report itself never exits anything.
func (r *Report) Dirty() bool {
	for _, o := range r.Outcomes {
		if o.Status != StatusUnchanged {
			return true
		}
	}
	return false
}

// Counts returns the number of changed, added and removed parts.
func (r *Report) Counts() (changed, added, removed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusChanged:
			changed++
		case StatusAdded:
			added++
		case StatusRemoved:
			removed++
		}
	}
	return
}

// PartError reports a part whose fingerprint could not be computed. The run
// fails as a whole rather than omitting the part from the report.
type PartError struct {
	Part string
	Err  error
}

func (e *PartError) Error() string { return fmt.Sprintf("part %q: %v", e.Part, e.Err) }
func (e *PartError) Unwrap() error { return e.Err }
