// Package orchestrator drives the per-chunk two-phase transfer. For each
// chunk without a done marker it copies the members from the source volume
// into a local staging directory, then copies the staging directory onto
// the destination volume, and only then records the chunk as done.
//
// Chunks are processed strictly in index order, one at a time: only one
// removable device is attached at any moment.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/ledger"
	"github.com/bamsammich/ferry/internal/plan"
	"github.com/bamsammich/ferry/internal/platform"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/ui"
	"github.com/bamsammich/ferry/internal/units"
	"github.com/bamsammich/ferry/internal/volume"
)

// Defaults used by the command line.
const (
	DefaultRetries    = 2
	DefaultRetryDelay = 5 * time.Second
)

var (
	// ErrRetriesExhausted is returned when a phase fails on every attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrNotPlanned is returned when the ledger holds no plan.
	ErrNotPlanned = errors.New("no plan in ledger")
)

// Ledger is the part of the progress ledger the orchestrator uses.
type Ledger interface {
	Planned() (bool, error)
	ChunkCount() (int, error)
	Chunk(index int) (plan.Chunk, error)
	IsDone(index int) (bool, error)
	MarkDone(index int) error
	Check() ([]ledger.Inconsistency, error)
	StagingDir() string
}

// Volumes attaches and releases the removable volumes.
type Volumes interface {
	Ensure(ctx context.Context, role volume.Role) (volume.Volume, error)
	Release(ctx context.Context, v volume.Volume) error
}

// State is the position of a chunk in the transfer protocol.
type State int

const (
	Pending State = iota
	StagingFromSource
	StagingToDest
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case StagingFromSource:
		return "staging-from-source"
	case StagingToDest:
		return "staging-to-dest"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunState is derived from the ledger at the start of each run and carried
// through the loop. It is never persisted.
type RunState struct {
	Current          int
	ChunkCount       int
	Planned          bool
	Start            time.Time
	CompletedThisRun int
	SkippedThisRun   int
}

// Remaining is the number of chunks after the current one.
func (rs RunState) Remaining() int {
	return max(rs.ChunkCount-rs.Current-1, 0)
}

// ETA extrapolates the time left from the chunks completed in this run.
func (rs RunState) ETA(now time.Time) time.Duration {
	return stats.EstimateRemaining(now.Sub(rs.Start), int64(rs.CompletedThisRun), int64(rs.Remaining()))
}

// Config tunes retries and what the engine is asked to do.
type Config struct {
	// Retries is the number of extra attempts per phase.
	Retries    int
	RetryDelay time.Duration
	Transfer   transfer.Options
	Events     chan<- event.Event
	Stats      *stats.Collector
}

// Orchestrator runs the transfer protocol over every pending chunk.
type Orchestrator struct {
	ledger  Ledger
	volumes Volumes
	engine  transfer.Engine
	cfg     Config
}

// New returns an Orchestrator.
func New(l Ledger, v Volumes, e transfer.Engine, cfg Config) *Orchestrator {
	cfg.Retries = max(cfg.Retries, 0)
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	return &Orchestrator{ledger: l, volumes: v, engine: e, cfg: cfg}
}

// Run processes every chunk that is not done. It returns the final run
// state; on error the failing chunk is left pending for the next run.
func (o *Orchestrator) Run(ctx context.Context) (RunState, error) {
	rs := RunState{Start: time.Now()}

	planned, err := o.ledger.Planned()
	if err != nil {
		return rs, fmt.Errorf("read ledger: %w", err)
	}
	if !planned {
		return rs, ErrNotPlanned
	}
	count, err := o.ledger.ChunkCount()
	if err != nil {
		return rs, fmt.Errorf("read ledger: %w", err)
	}
	rs.Planned = true
	rs.ChunkCount = count
	o.cfg.Stats.SetChunksTotal(int64(count))
	event.Emit(o.cfg.Events, event.Event{Type: event.PlanLoaded, Chunks: count})

	for i := range count {
		rs.Current = i

		done, err := o.ledger.IsDone(i)
		if err != nil {
			return rs, fmt.Errorf("read ledger: %w", err)
		}
		if done {
			rs.SkippedThisRun++
			o.cfg.Stats.AddChunksSkipped(1)
			event.Emit(o.cfg.Events, event.Event{Type: event.ChunkSkipped, Chunk: i, Chunks: count})
			slog.Debug("chunk already done", "chunk", i)
			continue
		}

		chunk, err := o.ledger.Chunk(i)
		if err != nil {
			return rs, fmt.Errorf("read ledger: %w", err)
		}
		if rs, err = o.runChunk(ctx, rs, chunk); err != nil {
			return rs, err
		}
	}

	o.checkLedger()
	slog.Log(ctx, ui.LevelSuccess, "all chunks complete",
		"chunks", count, "this_run", rs.CompletedThisRun, "elapsed", time.Since(rs.Start).Round(time.Second))
	return rs, nil
}

func (o *Orchestrator) runChunk(ctx context.Context, rs RunState, chunk plan.Chunk) (RunState, error) {
	i := chunk.Index
	state := Pending
	move := func(to State) {
		slog.Debug("chunk state", "chunk", i, "from", state.String(), "to", to.String())
		state = to
	}

	slog.Info(fmt.Sprintf("chunk %d/%d", i+1, rs.ChunkCount),
		"files", len(chunk.Files), "size", units.FormatBytes(chunk.Size))
	event.Emit(o.cfg.Events, event.Event{
		Type: event.ChunkStarted, Chunk: i, Chunks: rs.ChunkCount, Files: len(chunk.Files), Size: chunk.Size,
	})

	if chunk.Empty() {
		if err := o.ledger.MarkDone(i); err != nil {
			move(Failed)
			return rs, fmt.Errorf("mark chunk %d done: %w", i, err)
		}
		move(Done)
		return o.completed(ctx, rs, chunk), nil
	}

	o.checkFreeSpace(chunk)

	move(StagingFromSource)
	if err := o.runPhase(ctx, chunk, phaseSource); err != nil {
		move(Failed)
		return rs, err
	}
	move(StagingToDest)
	if err := o.runPhase(ctx, chunk, phaseDest); err != nil {
		move(Failed)
		return rs, err
	}

	if err := o.ledger.MarkDone(i); err != nil {
		move(Failed)
		return rs, fmt.Errorf("mark chunk %d done: %w", i, err)
	}
	move(Done)

	if err := os.RemoveAll(o.ledger.StagingDir()); err != nil {
		slog.Warn("could not clear staging", "dir", o.ledger.StagingDir(), "error", err)
	}
	return o.completed(ctx, rs, chunk), nil
}

func (o *Orchestrator) completed(ctx context.Context, rs RunState, chunk plan.Chunk) RunState {
	rs.CompletedThisRun++
	o.cfg.Stats.AddChunksCompleted(1)
	eta := rs.ETA(time.Now())

	event.Emit(o.cfg.Events, event.Event{
		Type: event.ChunkCompleted, Chunk: chunk.Index, Chunks: rs.ChunkCount, Size: chunk.Size, ETA: eta,
	})
	attrs := []any{"chunk", chunk.Index}
	if rs.Remaining() > 0 {
		attrs = append(attrs, "remaining", rs.Remaining(), "eta", ui.FormatDuration(eta))
	}
	slog.Log(ctx, ui.LevelSuccess, fmt.Sprintf("chunk %d/%d done", chunk.Index+1, rs.ChunkCount), attrs...)
	return rs
}

// checkFreeSpace warns when the staging filesystem looks too small for the
// chunk. The copy is attempted regardless.
func (o *Orchestrator) checkFreeSpace(chunk plan.Chunk) {
	dir := o.ledger.StagingDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return
	}
	free, err := platform.FreeSpace(dir)
	if err != nil {
		slog.Debug("free space check failed", "dir", dir, "error", err)
		return
	}
	if free < chunk.Size {
		slog.Warn("staging area may be too small for chunk",
			"chunk", chunk.Index, "need", units.FormatBytes(chunk.Size), "free", units.FormatBytes(free))
	}
}

func (o *Orchestrator) checkLedger() {
	issues, err := o.ledger.Check()
	if err != nil {
		slog.Warn("ledger check failed", "error", err)
		return
	}
	for _, issue := range issues {
		slog.Warn("ledger inconsistency", "issue", issue.String())
	}
}

// isFatal reports errors that no retry can fix.
func isFatal(err error) bool {
	return errors.Is(err, volume.ErrMountTimeout) || errors.Is(err, io.ErrUnexpectedEOF)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
