package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/parts/internal/config"
	"git.home.luguber.info/inful/parts/internal/detect"
	"git.home.luguber.info/inful/parts/internal/history"
	"git.home.luguber.info/inful/parts/internal/resolver"
	"git.home.luguber.info/inful/parts/internal/snapshot"
	"git.home.luguber.info/inful/parts/internal/walker"
	"git.home.luguber.info/inful/parts/internal/watch"
)

const (
	exitClean = 0
	exitDirty = 1
	exitError = 2
)

var CLI struct {
	Config  string `short:"c" help:"Config file in \"path\" or \"path:key.key\" form. Discovered from well-known locations when empty." env:"PARTS_CONFIG"`
	Root    string `short:"C" help:"Project root directory" default:"." env:"PARTS_ROOT"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	List struct{} `cmd:"" help:"List declared parts"`

	Walk struct {
		Part   string `arg:"" optional:"" help:"Part to walk (the default part when omitted)"`
		Sorted bool   `help:"Sort paths instead of printing walk order"`
	} `cmd:"" help:"Print the files belonging to a part"`

	Status struct {
		Rev              string `help:"Anchor the run to a git revision instead of the live tree" env:"PARTS_REV"`
		Commit           bool   `help:"Persist the new snapshot after the run"`
		State            string `help:"Snapshot file path" default:".parts-state.json" env:"PARTS_STATE"`
		IgnoreStaleState bool   `help:"Treat an unreadable snapshot as no prior snapshot"`
		History          string `help:"Append the run to a SQLite journal at this path" env:"PARTS_HISTORY"`
		JSON             bool   `help:"Emit the report as JSON"`
	} `cmd:"" help:"Detect which parts changed since the recorded baseline"`

	Commit struct {
		Rev              string `help:"Anchor the run to a git revision instead of the live tree" env:"PARTS_REV"`
		State            string `help:"Snapshot file path" default:".parts-state.json" env:"PARTS_STATE"`
		IgnoreStaleState bool   `help:"Treat an unreadable snapshot as no prior snapshot"`
		History          string `help:"Append the run to a SQLite journal at this path" env:"PARTS_HISTORY"`
	} `cmd:"" help:"Detect changes and record the new baseline"`

	Watch struct {
		Interval time.Duration `help:"Periodic full rescan interval" default:"5m"`
		State    string        `help:"Snapshot file path" default:".parts-state.json" env:"PARTS_STATE"`
		History  string        `help:"Append each run to a SQLite journal at this path" env:"PARTS_HISTORY"`
	} `cmd:"" help:"Watch the tree and re-detect on changes"`
}

func main() {
	// Best effort; a missing .env file is the normal case.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(exitError)
	}

	switch ctx.Command() {
	case "list":
		runList(cfg)
	case "walk", "walk <part>":
		if err := runWalk(cfg, CLI.Walk.Part, CLI.Walk.Sorted); err != nil {
			slog.Error("Walk failed", "error", err)
			os.Exit(exitError)
		}
	case "status":
		report, err := runDetect(cfg, detect.Options{
			Root:             CLI.Root,
			Rev:              CLI.Status.Rev,
			Commit:           CLI.Status.Commit,
			IgnoreStaleState: CLI.Status.IgnoreStaleState,
		}, CLI.Status.State, CLI.Status.History)
		if err != nil {
			slog.Error("Status failed", "error", err)
			os.Exit(exitError)
		}
		if err := printReport(report, CLI.Status.JSON); err != nil {
			slog.Error("Failed to print report", "error", err)
			os.Exit(exitError)
		}
		if report.Dirty() {
			os.Exit(exitDirty)
		}
	case "commit":
		report, err := runDetect(cfg, detect.Options{
			Root:             CLI.Root,
			Rev:              CLI.Commit.Rev,
			Commit:           true,
			IgnoreStaleState: CLI.Commit.IgnoreStaleState,
		}, CLI.Commit.State, CLI.Commit.History)
		if err != nil {
			slog.Error("Commit failed", "error", err)
			os.Exit(exitError)
		}
		if err := printReport(report, false); err != nil {
			slog.Error("Failed to print report", "error", err)
			os.Exit(exitError)
		}
	case "watch":
		if err := runWatch(cfg); err != nil {
			slog.Error("Watch failed", "error", err)
			os.Exit(exitError)
		}
	}
}

// loadConfig loads the config named by --config, or discovers one in the
// project root.
func loadConfig() (*config.File, error) {
	if CLI.Config != "" {
		return config.Load(CLI.Config)
	}
	return config.Discover(CLI.Root)
}

func runList(cfg *config.File) {
	for _, name := range cfg.Names() {
		if name == cfg.Default {
			fmt.Printf("%s (default)\n", name)
			continue
		}
		fmt.Println(name)
	}
}

func runWalk(cfg *config.File, name string, sorted bool) error {
	part, err := cfg.Part(name)
	if err != nil {
		return err
	}

	tree := walker.New(walker.Options{
		Root:         CLI.Root,
		Dir:          part.Directory,
		IgnoreHidden: part.IgnoreHidden,
		UseGitignore: part.UseGitignore,
	})
	members, err := resolver.Resolve(tree, []*config.Part{part})
	if err != nil {
		return err
	}

	files := members[0].Files
	if sorted {
		sorted := make([]string, len(files))
		copy(sorted, files)
		sort.Strings(sorted)
		files = sorted
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

func runDetect(cfg *config.File, opts detect.Options, statePath, historyPath string) (*detect.Report, error) {
	detector := detect.New(snapshot.NewStore(statePathIn(opts.Root, statePath)))
	report, err := detector.Run(context.Background(), cfg, opts)
	if err != nil {
		return nil, err
	}
	if historyPath != "" {
		if err := appendHistory(historyPath, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func appendHistory(path string, report *detect.Report) error {
	journal, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("open history journal: %w", err)
	}
	defer journal.Close()

	id, err := journal.Append(context.Background(), report)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	slog.Debug("Run recorded in history journal", "run_id", id, "path", path)
	return nil
}

func printReport(report *detect.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	for _, o := range report.Outcomes {
		fmt.Printf("%-9s  %s\n", o.Status, o.Part)
	}
	return nil
}

func runWatch(cfg *config.File) error {
	statePath := statePathIn(CLI.Root, CLI.Watch.State)
	detector := detect.New(snapshot.NewStore(statePath))

	runner := func(ctx context.Context) error {
		report, err := detector.Run(ctx, cfg, detect.Options{
			Root:   CLI.Root,
			Commit: true,
		})
		if err != nil {
			return err
		}
		if report.Dirty() {
			if err := printReport(report, false); err != nil {
				return err
			}
		}
		if CLI.Watch.History != "" {
			return appendHistory(CLI.Watch.History, report)
		}
		return nil
	}

	watcher, err := watch.New(watch.Options{
		Root:      CLI.Root,
		Interval:  CLI.Watch.Interval,
		StatePath: statePath,
	}, runner)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Establish a baseline before reacting to events.
	if err := runner(ctx); err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	slog.Info("Watching for changes, press Ctrl-C to stop")
	<-ctx.Done()
	return watcher.Stop()
}

// statePathIn anchors a relative state path at the project root.
func statePathIn(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
