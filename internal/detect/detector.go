// Package detect orchestrates a detection run: resolve part memberships,
// fingerprint them, compare against the prior snapshot and classify every
// part as unchanged, changed, added or removed.
package detect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/parts/internal/config"
	"git.home.luguber.info/inful/parts/internal/fingerprint"
	"git.home.luguber.info/inful/parts/internal/gitrev"
	"git.home.luguber.info/inful/parts/internal/metrics"
	"git.home.luguber.info/inful/parts/internal/resolver"
	"git.home.luguber.info/inful/parts/internal/snapshot"
	"git.home.luguber.info/inful/parts/internal/util/sets"
	"git.home.luguber.info/inful/parts/internal/walker"
)

// Source is the backing store a run reads from: a live working tree or a
// git revision tree. Both backends satisfy it.
type Source interface {
	Walk(fn func(path string) error) error
	Open(path string) (io.ReadCloser, error)
}

// Options configures one run.
type Options struct {
	// Root is the project root directory.
	Root string
	// Rev anchors the run to a git revision instead of the live tree.
	Rev string
	// Commit persists the freshly computed snapshot after a fully
	// successful run. Leave false for a dry run.
	Commit bool
	// IgnoreStaleState downgrades a snapshot format error to "no prior
	// snapshot". Never implied; masking a real baseline must be a
	// deliberate choice.
	IgnoreStaleState bool
	// Workers bounds concurrent part fingerprinting. Zero picks a
	// default from GOMAXPROCS.
	Workers int
}

// Detector runs change detection against one state store.
type Detector struct {
	store    *snapshot.Store
	logger   *slog.Logger
	recorder metrics.Recorder
}

// New creates a Detector.
func New(store *snapshot.Store) *Detector {
	return &Detector{
		store:    store,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
}

// WithLogger sets a custom logger.
func (d *Detector) WithLogger(logger *slog.Logger) *Detector {
	d.logger = logger
	return d
}

// WithRecorder sets a metrics recorder.
func (d *Detector) WithRecorder(r metrics.Recorder) *Detector {
	d.recorder = r
	return d
}

// task is one part awaiting fingerprinting.
type task struct {
	part   *config.Part
	source Source
	files  []string
}

// Run executes a full detection pass. On any per-part failure no snapshot
// is committed and the joined *PartError values name every part that could
// not be evaluated.
func (d *Detector) Run(ctx context.Context, cfg *config.File, opts Options) (*Report, error) {
	start := time.Now()
	if opts.Root == "" {
		opts.Root = "."
	}

	prior, err := d.store.Load()
	if err != nil {
		var fe *snapshot.FormatError
		if errors.As(err, &fe) && opts.IgnoreStaleState {
			d.logger.Warn("Ignoring unreadable state file, treating run as first", "error", err)
			prior = nil
		} else {
			return nil, err
		}
	}

	var repo *gitrev.Repo
	if opts.Rev != "" {
		repo, err = gitrev.Open(opts.Root)
		if err != nil {
			return nil, err
		}
	}

	tasks, curRev, err := d.resolveAll(cfg, repo, opts)
	if err != nil {
		return nil, err
	}

	reused := d.planReuse(tasks, prior, repo, curRev)

	digests, err := d.fingerprintAll(ctx, tasks, reused, opts.Workers)
	if err != nil {
		return nil, err
	}

	report := d.classify(cfg, prior, tasks, digests, reused)
	report.Revision = curRev
	report.StartedAt = start

	if opts.Commit {
		if err := d.commit(prior, tasks, digests, reused, curRev); err != nil {
			return nil, err
		}
		report.Committed = true
	}

	report.Elapsed = time.Since(start)
	changed, added, removed := report.Counts()
	d.recorder.RunCompleted(!report.Dirty(), changed, added, removed, report.Elapsed)
	d.logger.Info("Detection run complete",
		"parts", len(cfg.Parts),
		"changed", changed,
		"added", added,
		"removed", removed,
		"committed", report.Committed,
		"elapsed", report.Elapsed)
	return report, nil
}

// resolveAll enumerates the tree once per distinct walk configuration and
// assigns member files to every part.
func (d *Detector) resolveAll(cfg *config.File, repo *gitrev.Repo, opts Options) ([]task, string, error) {
	tasks := make([]task, len(cfg.Parts))
	for i := range cfg.Parts {
		tasks[i].part = &cfg.Parts[i]
	}

	if repo != nil {
		tree, err := repo.TreeAt(opts.Rev)
		if err != nil {
			return nil, "", err
		}
		parts := make([]*config.Part, len(tasks))
		for i := range tasks {
			parts[i] = tasks[i].part
		}
		members, err := resolver.Resolve(tree, parts)
		if err != nil {
			return nil, "", err
		}
		for i := range tasks {
			tasks[i].source = tree
			tasks[i].files = members[i].Files
		}
		return tasks, tree.Commit(), nil
	}

	// Live tree: one pass per (gitignore, hidden) flag combination.
	type walkKey struct{ gitignore, hidden bool }
	groups := make(map[walkKey][]int)
	for i := range tasks {
		k := walkKey{gitignore: tasks[i].part.UseGitignore, hidden: tasks[i].part.IgnoreHidden}
		groups[k] = append(groups[k], i)
	}
	for k, idxs := range groups {
		tree := walker.New(walker.Options{
			Root:         opts.Root,
			Dir:          commonDir(tasks, idxs),
			IgnoreHidden: k.hidden,
			UseGitignore: k.gitignore,
		})
		parts := make([]*config.Part, len(idxs))
		for j, i := range idxs {
			parts[j] = tasks[i].part
		}
		members, err := resolver.Resolve(tree, parts)
		if err != nil {
			return nil, "", err
		}
		for j, i := range idxs {
			tasks[i].source = tree
			tasks[i].files = members[j].Files
		}
	}
	return tasks, "", nil
}

// commonDir narrows the walk scope when every part in the group shares one
// directory; mixed groups walk the whole root and rely on per-part
// eligibility.
func commonDir(tasks []task, idxs []int) string {
	dir := tasks[idxs[0]].part.Directory
	for _, i := range idxs[1:] {
		if tasks[i].part.Directory != dir {
			return "."
		}
	}
	return dir
}

// planReuse marks parts whose prior digest can be carried over: the part's
// rules are unchanged and no path touched between the prior revision and
// the current one is eligible for it. Pure optimization: any doubt falls
// back to recomputing, so the optimized and full paths always agree.
func (d *Detector) planReuse(tasks []task, prior *snapshot.Snapshot, repo *gitrev.Repo, curRev string) []bool {
	reused := make([]bool, len(tasks))
	if repo == nil || prior == nil || prior.Revision == "" || curRev == "" {
		return reused
	}

	var touched []string
	if prior.Revision != curRev {
		var err error
		touched, err = repo.TouchedPaths(prior.Revision, curRev)
		if err != nil {
			d.logger.Warn("Touched-paths diff failed, recomputing all parts", "error", err)
			return reused
		}
	}

	for i := range tasks {
		entry, ok := prior.Parts[tasks[i].part.Name]
		if !ok || entry.Digest == "" {
			continue
		}
		if entry.Rules != tasks[i].part.RuleHash() {
			continue
		}
		hit := false
		for _, p := range touched {
			if resolver.Eligible(tasks[i].part, p) {
				hit = true
				break
			}
		}
		if !hit {
			reused[i] = true
		}
	}
	return reused
}

// fingerprintAll computes digests for all non-reused parts with a bounded
// worker pool. Parts are independent and read-only; each worker owns its
// accumulator exclusively.
func (d *Detector) fingerprintAll(ctx context.Context, tasks []task, reused []bool, workers int) ([]fingerprint.Digest, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers > 8 {
			workers = 8
		}
	}

	digests := make([]fingerprint.Digest, len(tasks))
	errs := make([]error, len(tasks))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range tasks {
		if reused[i] {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			t0 := time.Now()
			digest, err := fingerprint.Compute(tasks[i].source, tasks[i].files)
			if err != nil {
				errs[i] = err
				return
			}
			digests[i] = digest
			d.recorder.PartFingerprinted(tasks[i].part.Name, len(tasks[i].files), time.Since(t0))
			d.logger.Debug("Part fingerprinted",
				"part", tasks[i].part.Name,
				"files", len(tasks[i].files),
				"digest", digest.Hex())
		}(i)
	}
	wg.Wait()

	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, &PartError{Part: tasks[i].part.Name, Err: err})
		}
	}
	if len(failed) > 0 {
		return nil, errors.Join(failed...)
	}
	return digests, nil
}

// classify builds the report: declared parts in config order, then parts
// present only in the prior snapshot, sorted by name.
func (d *Detector) classify(cfg *config.File, prior *snapshot.Snapshot, tasks []task, digests []fingerprint.Digest, reused []bool) *Report {
	report := &Report{}

	for i := range tasks {
		name := tasks[i].part.Name
		var priorEntry *snapshot.Entry
		if prior != nil {
			if e, ok := prior.Parts[name]; ok {
				priorEntry = &e
			}
		}

		o := Outcome{Part: name, Files: len(tasks[i].files), Reused: reused[i]}
		if reused[i] {
			o.NewDigest = priorEntry.Digest
			o.Files = priorEntry.Files
		} else {
			o.NewDigest = digests[i].Hex()
		}

		switch {
		case priorEntry == nil:
			o.Status = StatusAdded
		case priorEntry.Digest == o.NewDigest:
			o.Status = StatusUnchanged
			o.OldDigest = priorEntry.Digest
		default:
			o.Status = StatusChanged
			o.OldDigest = priorEntry.Digest
		}
		report.Outcomes = append(report.Outcomes, o)
	}

	if prior != nil {
		declared := sets.New(cfg.Names()...)
		var gone []string
		for name := range prior.Parts {
			if !declared.Has(name) {
				gone = append(gone, name)
			}
		}
		sort.Strings(gone)
		for _, name := range gone {
			e := prior.Parts[name]
			report.Outcomes = append(report.Outcomes, Outcome{
				Part:      name,
				Status:    StatusRemoved,
				OldDigest: e.Digest,
				Files:     e.Files,
			})
		}
	}
	return report
}

// commit persists the new snapshot. Only reached when every part was
// evaluated successfully; unchanged parts keep their original update time.
func (d *Detector) commit(prior *snapshot.Snapshot, tasks []task, digests []fingerprint.Digest, reused []bool, curRev string) error {
	now := time.Now().UTC()
	next := snapshot.New()
	next.CreatedAt = now
	next.Revision = curRev

	for i := range tasks {
		name := tasks[i].part.Name
		if reused[i] {
			// Digest carried over from the prior snapshot; it is valid
			// at the new revision too.
			old := prior.Parts[name]
			old.Revision = curRev
			next.Parts[name] = old
			continue
		}
		entry := snapshot.Entry{
			Digest:    digests[i].Hex(),
			Files:     len(tasks[i].files),
			Rules:     tasks[i].part.RuleHash(),
			Revision:  curRev,
			UpdatedAt: now,
		}
		if prior != nil {
			if old, ok := prior.Parts[name]; ok && old.Digest == entry.Digest {
				entry.UpdatedAt = old.UpdatedAt
			}
		}
		next.Parts[name] = entry
	}
	return d.store.Commit(next)
}
