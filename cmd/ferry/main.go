package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/ferry/internal/command"
	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/ledger"
	"github.com/bamsammich/ferry/internal/orchestrator"
	"github.com/bamsammich/ferry/internal/plan"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/ui"
	"github.com/bamsammich/ferry/internal/units"
	"github.com/bamsammich/ferry/internal/verify"
	"github.com/bamsammich/ferry/internal/volume"
)

var version = "dev"

// defaultBudget fits the largest file a FAT32 stick can hold.
const defaultBudget = 4 << 30

func main() {
	os.Exit(run())
}

// sizeFlag is a pflag.Value accepting human-readable sizes like 700M or 4G.
type sizeFlag struct {
	v *int64
}

func (f sizeFlag) String() string {
	if f.v == nil || *f.v == 0 {
		return ""
	}
	return units.FormatBytes(*f.v)
}

func (sizeFlag) Type() string { return "size" }

func (f sizeFlag) Set(val string) error {
	n, err := units.ParseSize(val)
	if err != nil {
		return err
	}
	*f.v = n
	return nil
}

// ruleFlag is a pflag.Value that appends to a shared rule list so the
// command-line order of --exclude and --include is preserved.
type ruleFlag struct {
	rules  *filter.Rules
	action filter.Action
}

func (*ruleFlag) String() string { return "" }
func (*ruleFlag) Type() string   { return "pattern" }

func (f *ruleFlag) Set(val string) error {
	return f.rules.Add(f.action, val)
}

var (
	_ pflag.Value = sizeFlag{}
	_ pflag.Value = (*ruleFlag)(nil)
)

// normalizeFlagName accepts underscores for dashes and --no-resume for --noresume.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.ReplaceAll(name, "_", "-")
	if name == "no-resume" {
		name = "noresume"
	}
	return pflag.NormalizedName(name)
}

// options holds every flag of the root command.
type options struct {
	noResume     bool
	quiet        bool
	verbose      bool
	verify       bool
	showVersion  bool
	budget       int64
	bwLimit      int64
	retries      int
	retryDelay   time.Duration
	mountTimeout time.Duration
	ledgerKind   string
	stateDir     string
	mediaRoot    string
	sourceLabel  string
	destLabel    string
	sourceDir    string
	destDir      string
	logFile      string
	filterFile   string
	noDefaults   bool
	rules        *filter.Rules
}

func run() int {
	opts := options{budget: defaultBudget, rules: filter.New()}

	rootCmd := &cobra.Command{
		Use:   "ferry [flags]",
		Short: "Move a file tree between removable volumes one chunk at a time",
		Long: `ferry moves a file tree from a removable source volume to a removable
destination volume when both cannot be attached at once. The tree is split
into chunks no larger than --budget; each chunk is copied from the source to
a local staging directory, then from staging to the destination, with ferry
prompting you to swap volumes in between. A single volume already attached
when ferry starts is offered as the first one needed; otherwise start with
no volume under the media root.

Progress is recorded in the state directory after every chunk, so an
interrupted run picks up where it stopped. Only one ferry process may use a
state directory at a time.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.showVersion {
				fmt.Fprintf(os.Stdout, "ferry %s\n", version)
				return nil
			}
			return runTransfer(cmd, &opts)
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	f.BoolVar(&opts.noResume, "noresume", false, "discard saved progress and plan again from scratch")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "only print warnings and errors")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print debug output and one line per copied file")
	f.BoolVar(&opts.verify, "verify", false, "compare source and destination after the last chunk")
	f.Var(sizeFlag{&opts.budget}, "budget", "maximum bytes per chunk (e.g. 700M, 4G)")
	f.Var(sizeFlag{&opts.bwLimit}, "bwlimit", "bandwidth limit (e.g. 50M)")
	f.IntVar(&opts.retries, "retries", orchestrator.DefaultRetries, "extra attempts per phase after a copy failure")
	f.DurationVar(&opts.retryDelay, "retry-delay", orchestrator.DefaultRetryDelay, "wait between attempts")
	f.DurationVar(&opts.mountTimeout, "mount-timeout", volume.DefaultMountTimeout,
		"how long to wait for an inserted volume to appear")
	f.StringVar(&opts.mediaRoot, "media-root", "", "directory where removable volumes are mounted (default: auto-detect)")
	f.StringVar(&opts.sourceDir, "source-dir", "", "directory inside the source volume to copy from")
	f.StringVar(&opts.destDir, "dest-dir", "", "directory inside the destination volume to copy to")
	f.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
	f.Var(&ruleFlag{rules: opts.rules, action: filter.Exclude}, "exclude", "do not plan files matching PATTERN (repeatable)")
	f.Var(&ruleFlag{rules: opts.rules, action: filter.Include}, "include", "plan files matching PATTERN even if a later rule excludes them (repeatable)")
	f.StringVar(&opts.filterFile, "filter", "", "read include/exclude rules from FILE")
	f.BoolVar(&opts.noDefaults, "no-default-excludes", false, "also plan volume metadata such as .Trashes and .DS_Store")

	// Shared with the status subcommand.
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.stateDir, "state-dir", "", "progress directory (default: $XDG_STATE_HOME/ferry/<job-id>)")
	pf.StringVar(&opts.ledgerKind, "ledger", ledger.KindDir, "progress store: dir or sqlite")
	pf.StringVar(&opts.sourceLabel, "source-label", "", "name of the source volume used in prompts")
	pf.StringVar(&opts.destLabel, "dest-label", "", "name of the destination volume used in prompts")

	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	rootCmd.AddCommand(newStatusCmd(&opts))
	rootCmd.AddCommand(newDocsCmd())

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: wires every component of a run
func runTransfer(cmd *cobra.Command, opts *options) error {
	cfg, cfgErr := config.Load()
	if err := applyConfigDefaults(cmd, cfg, opts); err != nil {
		return err
	}
	if opts.budget <= 0 {
		return fmt.Errorf("invalid --budget: %w", plan.ErrInvalidBudget)
	}
	if opts.retries < 0 {
		return errors.New("invalid --retries: must not be negative")
	}
	ui.ApplyTheme(cfg.Theme)

	// Logging goes through the console so it never tears the status line.
	isTTY := ui.IsTTY(os.Stderr.Fd())
	console := ui.NewConsole(os.Stderr, isTTY)
	var renderer *lipgloss.Renderer
	if isTTY {
		renderer = lipgloss.NewRenderer(os.Stderr)
	}
	logLevel := slog.LevelInfo
	if opts.quiet {
		logLevel = slog.LevelWarn
	} else if opts.verbose {
		logLevel = slog.LevelDebug
	}
	var logHandler slog.Handler = ui.NewStatusHandler(console, &ui.StatusHandlerOptions{
		Level:    logLevel,
		Renderer: renderer,
	})
	var eventLog *slog.Logger
	if opts.logFile != "" {
		lf, err := os.Create(opts.logFile)
		if err != nil {
			return exitWith(1, fmt.Errorf("open log file: %w", err))
		}
		defer lf.Close()
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level:       slog.LevelDebug,
			ReplaceAttr: ui.LevelNames,
		})
		logHandler = ui.NewMultiHandler(logHandler, jsonHandler)
		eventLog = slog.New(jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))

	if cfgErr != nil {
		slog.Warn("failed to load config", "path", config.Path(), "error", cfgErr)
	}

	stateDir := opts.stateDir
	if stateDir == "" {
		stateDir = config.DefaultStateDir(labelOr(opts.sourceLabel, "source"), labelOr(opts.destLabel, "destination"))
	}

	rules, err := planRules(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	led, err := ledger.Open(opts.ledgerKind, stateDir)
	if err != nil {
		return exitWith(1, fmt.Errorf("open progress: %w", err))
	}
	defer led.Close()
	slog.Debug("progress store", "kind", opts.ledgerKind, "dir", stateDir)

	if opts.noResume {
		if err := led.Reset(); err != nil {
			return exitWith(1, fmt.Errorf("reset progress: %w", err))
		}
		slog.Info("discarded saved progress", "dir", stateDir)
	}

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	// With --log, events are also written to the JSON log before reaching
	// the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if eventLog != nil {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range events {
				attrs := []slog.Attr{
					slog.String("type", ev.Type.String()),
					slog.Int("chunk", ev.Chunk),
				}
				if ev.Path != "" {
					attrs = append(attrs, slog.String("path", ev.Path), slog.Int64("size", ev.Size))
				}
				if ev.Phase != "" {
					attrs = append(attrs, slog.String("phase", ev.Phase), slog.Int("attempt", ev.Attempt))
				}
				if ev.Error != nil {
					attrs = append(attrs, slog.String("error", ev.Error.Error()))
				}
				eventLog.LogAttrs(context.Background(), slog.LevelDebug, "ferry.event", attrs...)
				teed <- ev
			}
			close(teed)
		}()
		presenterEvents = teed
	}

	presenter := ui.NewPresenter(ui.Config{
		Writer:   os.Stdout,
		Console:  console,
		Stats:    collector,
		IsTTY:    isTTY,
		Quiet:    opts.quiet,
		Verbose:  opts.verbose,
		Width:    ui.TermWidth(os.Stderr.Fd()),
		Renderer: renderer,
	})
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		if err := presenter.Run(presenterEvents); err != nil {
			fmt.Fprintf(os.Stderr, "presenter: %v\n", err)
		}
	}()
	finish := sync.OnceFunc(func() {
		close(events)
		presenterWg.Wait()
		if !opts.quiet {
			if summary := presenter.Summary(); summary != "" {
				fmt.Fprintln(console, summary)
			}
		}
	})
	defer finish()

	volumes := newVolumes(cfg, opts, console)

	// An existing plan is returned without touching the source volume.
	planned, err := led.Planned()
	if err != nil {
		return exitWith(1, fmt.Errorf("read progress: %w", err))
	}
	var sourceRoot string
	if !planned {
		src, err := volumes.Ensure(ctx, volume.Source)
		if err != nil {
			return fatal(err)
		}
		sourceRoot = src.Root
	}
	chunks, err := plan.NewPlanner(led, 0).WithFilter(rules).Plan(ctx, sourceRoot, opts.budget)
	if err != nil {
		return fatal(err)
	}

	engine := transfer.NewLocal(transfer.Config{
		BWLimit: opts.bwLimit,
		Events:  events,
		Stats:   collector,
	})
	orch := orchestrator.New(led, volumes, engine, orchestrator.Config{
		Retries:    opts.retries,
		RetryDelay: opts.retryDelay,
		Transfer: transfer.Options{
			PreserveAttributes: true,
			ShowProgress:       !opts.quiet,
		},
		Events: events,
		Stats:  collector,
	})
	if _, err := orch.Run(ctx); err != nil {
		return fatal(err)
	}

	if opts.verify {
		paths := make([]string, 0)
		for _, c := range chunks {
			paths = append(paths, c.Paths()...)
		}
		if _, err := verify.Run(ctx, verify.Config{
			Volumes: volumes,
			Paths:   paths,
			Events:  events,
			Stats:   collector,
		}); err != nil {
			return fatal(fmt.Errorf("verify: %w", err))
		}
	}

	// The source mounted for planning stays attached when no chunk needed it.
	if err := volumes.ReleaseAttached(ctx); err != nil {
		return fatal(err)
	}

	stop()
	finish()
	return nil
}

func newVolumes(cfg config.Config, opts *options, console *ui.Console) *volume.Removable {
	mediaRoot := opts.mediaRoot
	if mediaRoot == "" {
		mediaRoot = config.DefaultMediaRoot()
	}
	requireMount := true
	if cfg.Volumes.RequireMountPoint != nil {
		requireMount = *cfg.Volumes.RequireMountPoint
	}
	ejectCommands := cfg.Eject.Commands
	if len(ejectCommands) == 0 {
		ejectCommands = config.DefaultEjectCommands()
	}

	return volume.NewRemovable(volume.RemovableConfig{
		Waiter: &volume.Waiter{Root: mediaRoot, RequireMountPoint: requireMount},
		Ejector: &volume.Ejector{
			Runner:     command.New(command.WithTimeout(time.Minute), command.WithRetry(1, 2*time.Second)),
			Commands:   ejectCommands,
			MountsFile: volume.DefaultMountsFile,
		},
		Prompter:     volume.NewLinePrompter(os.Stdin, console),
		Source:       volume.RoleConfig{Label: opts.sourceLabel, Subdir: opts.sourceDir},
		Destination:  volume.RoleConfig{Label: opts.destLabel, Subdir: opts.destDir},
		MountTimeout: opts.mountTimeout,
	})
}

// applyConfigDefaults applies config file values for flags not explicitly
// set on the CLI.
//
//nolint:gocyclo // one branch per setting
func applyConfigDefaults(cmd *cobra.Command, cfg config.Config, opts *options) error {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	d := cfg.Defaults

	if !set("budget") && d.Budget != nil {
		n, err := units.ParseSize(*d.Budget)
		if err != nil {
			return fmt.Errorf("config budget: %w", err)
		}
		opts.budget = n
	}
	if !set("bwlimit") && d.BWLimit != nil {
		n, err := units.ParseSize(*d.BWLimit)
		if err != nil {
			return fmt.Errorf("config bwlimit: %w", err)
		}
		opts.bwLimit = n
	}
	if !set("retries") && d.Retries != nil {
		opts.retries = *d.Retries
	}
	if !set("retry-delay") && d.RetryDelay != nil {
		opts.retryDelay = d.RetryDelay.Duration
	}
	if !set("mount-timeout") && d.MountTimeout != nil {
		opts.mountTimeout = d.MountTimeout.Duration
	}
	if !set("ledger") && d.Ledger != nil {
		opts.ledgerKind = *d.Ledger
	}
	if !set("verify") && d.Verify != nil {
		opts.verify = *d.Verify
	}
	if !set("state-dir") && d.StateDir != nil {
		opts.stateDir = *d.StateDir
	}
	applyVolumeDefaults(set, cfg.Volumes, opts)
	return nil
}

func applyVolumeDefaults(set func(string) bool, v config.VolumesConfig, opts *options) {
	pairs := []struct {
		flag string
		dst  *string
		val  *string
	}{
		{"media-root", &opts.mediaRoot, v.MediaRoot},
		{"source-label", &opts.sourceLabel, v.SourceLabel},
		{"dest-label", &opts.destLabel, v.DestLabel},
		{"source-dir", &opts.sourceDir, v.SourceDir},
		{"dest-dir", &opts.destDir, v.DestDir},
	}
	for _, p := range pairs {
		if !set(p.flag) && p.val != nil {
			*p.dst = *p.val
		}
	}
}

// planRules returns the include/exclude rules for planning: rules from
// --filter, then the command-line rules, then the volume metadata defaults.
func planRules(opts *options) (*filter.Rules, error) {
	rules := filter.New()
	if opts.filterFile != "" {
		if err := rules.LoadFile(opts.filterFile); err != nil {
			return nil, err
		}
	}
	rules.Append(opts.rules)
	if !opts.noDefaults {
		rules.AddVolumeMetadata()
	}
	return rules, nil
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}

// fatal logs err and converts it into exit code 1. An interrupted run is
// reported as such; its progress up to the last finished chunk is kept.
func fatal(err error) error {
	if errors.Is(err, context.Canceled) {
		slog.Warn("interrupted; progress is saved, run ferry again to resume")
		return &exitError{code: 1}
	}
	slog.Error("transfer aborted", "error", err)
	return &exitError{code: 1}
}

func exitWith(code int, err error) error {
	slog.Error(err.Error())
	return &exitError{code: code}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
