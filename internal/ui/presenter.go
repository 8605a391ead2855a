package ui

import (
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/ferry/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// StatsSource is the read side of a stats.Collector.
type StatsSource interface {
	Snapshot() stats.Snapshot
	Tick()
	RollingSpeed(seconds int) float64
}

// Config configures a Presenter.
type Config struct {
	// Writer receives per-file lines and the summary.
	Writer io.Writer
	// Console carries the status line on a TTY.
	Console *Console
	Stats   StatsSource
	IsTTY   bool
	Quiet   bool
	Verbose bool
	// Width is the terminal width used to fit the status line.
	Width int
	// Renderer colours the progress bar. Nil renders plain text.
	Renderer *lipgloss.Renderer
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // returns the presenter selected by Config
func NewPresenter(cfg Config) Presenter {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if !cfg.IsTTY || cfg.Console == nil {
		return &plainPresenter{
			w:       cfg.Writer,
			stats:   cfg.Stats,
			verbose: cfg.Verbose,
		}
	}
	width := cfg.Width
	if width <= 0 {
		width = 80
	}
	return &progressPresenter{
		console:  cfg.Console,
		stats:    cfg.Stats,
		verbose:  cfg.Verbose,
		width:    width,
		tick:     time.Second,
		renderer: cfg.Renderer,
	}
}
