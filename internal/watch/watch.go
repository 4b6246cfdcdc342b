// Package watch re-runs change detection when the project tree changes,
// with a periodic full rescan as a safety net for events the filesystem
// watcher misses.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
)

// Runner executes one detection run.
type Runner func(ctx context.Context) error

// Options configures a Watcher.
type Options struct {
	// Root is the directory tree to watch.
	Root string
	// Debounce delays a run until the tree has been quiet this long.
	Debounce time.Duration
	// Interval schedules periodic full rescans. Zero disables them.
	Interval time.Duration
	// StatePath names the snapshot file runs commit into. Events for it
	// and its temp and lock siblings are ignored, otherwise every commit
	// would retrigger the watcher.
	StatePath string
}

// Watcher watches a tree and triggers debounced detection runs.
type Watcher struct {
	opts      Options
	run       Runner
	watcher   *fsnotify.Watcher
	scheduler gocron.Scheduler
	logger    *slog.Logger

	mu          sync.Mutex
	stopChan    chan struct{}
	triggerChan chan struct{}
}

// New creates a Watcher over root calling run on changes.
func New(opts Options, run Runner) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	opts.Root = absRoot

	if opts.StatePath != "" {
		absState, err := filepath.Abs(opts.StatePath)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("resolve state path: %w", err)
		}
		opts.StatePath = absState
	}

	return &Watcher{
		opts:        opts,
		run:         run,
		watcher:     watcher,
		logger:      slog.Default(),
		stopChan:    make(chan struct{}),
		triggerChan: make(chan struct{}, 1),
	}, nil
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger
	return w
}

// Start begins watching. It returns after the watch goroutines are
// running; Stop shuts them down.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.addRecursive(w.opts.Root); err != nil {
		return err
	}
	w.logger.Info("Watching project tree", "root", w.opts.Root, "debounce", w.opts.Debounce)

	if w.opts.Interval > 0 {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(w.opts.Interval),
			gocron.NewTask(func() {
				w.logger.Debug("Periodic rescan triggered")
				w.trigger()
			}),
			gocron.WithName("periodic-rescan"),
		)
		if err != nil {
			return fmt.Errorf("schedule periodic rescan: %w", err)
		}
		scheduler.Start()
		w.scheduler = scheduler
	}

	go w.watchLoop(ctx)
	go w.runLoop(ctx)
	return nil
}

// Stop stops the watcher and its scheduler.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	close(w.stopChan)
	if w.scheduler != nil {
		if err := w.scheduler.Shutdown(); err != nil {
			w.logger.Error("Error stopping scheduler", "error", err)
		}
	}
	return w.watcher.Close()
}

// addRecursive watches dir and every subdirectory except .git.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if underGitDir(w.opts.Root, event.Name) {
				continue
			}
			if w.isStateFile(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				// New directories need their own watch before events
				// inside them can be seen.
				if err := w.addRecursive(event.Name); err != nil {
					w.logger.Debug("Could not watch new path", "path", event.Name, "error", err)
				}
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
				event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				w.logger.Debug("Tree change detected", "path", event.Name, "op", event.Op.String())
				w.trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

// runLoop debounces triggers and executes runs one at a time.
func (w *Watcher) runLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.triggerChan:
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			if err := w.run(ctx); err != nil {
				w.logger.Error("Detection run failed", "error", err)
			}
		}
	}
}

func (w *Watcher) trigger() {
	select {
	case w.triggerChan <- struct{}{}:
	default:
	}
}

// isStateFile reports whether name is the snapshot file or one of the
// sibling files a commit creates.
func (w *Watcher) isStateFile(name string) bool {
	if w.opts.StatePath == "" {
		return false
	}
	name = filepath.Clean(name)
	return name == w.opts.StatePath ||
		name == w.opts.StatePath+".tmp" ||
		name == w.opts.StatePath+".lock"
}

func underGitDir(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == ".git" || strings.HasPrefix(rel, ".git/")
}
