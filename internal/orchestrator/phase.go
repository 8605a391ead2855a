package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/plan"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/volume"
)

type phase int

const (
	phaseSource phase = iota + 1 // source volume -> staging
	phaseDest                    // staging -> destination volume
)

func (p phase) String() string {
	if p == phaseSource {
		return "source"
	}
	return "destination"
}

// runPhase makes up to Retries+1 attempts at one phase. Each attempt
// includes the volume steps, so a failed attempt re-prompts as needed.
func (o *Orchestrator) runPhase(ctx context.Context, chunk plan.Chunk, p phase) error {
	attempts := o.cfg.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			o.cfg.Stats.AddRetries(1)
			event.Emit(o.cfg.Events, event.Event{
				Type: event.PhaseRetry, Chunk: chunk.Index, Phase: p.String(), Attempt: attempt, Error: lastErr,
			})
			slog.Warn("retrying phase", "chunk", chunk.Index, "phase", p.String(),
				"attempt", attempt, "of", attempts, "delay", o.cfg.RetryDelay)
			if err := sleepCtx(ctx, o.cfg.RetryDelay); err != nil {
				return err
			}
		}

		event.Emit(o.cfg.Events, event.Event{
			Type: event.PhaseStarted, Chunk: chunk.Index, Phase: p.String(), Attempt: attempt,
		})
		err := o.attempt(ctx, chunk, p)
		if err == nil {
			event.Emit(o.cfg.Events, event.Event{
				Type: event.PhaseCompleted, Chunk: chunk.Index, Phase: p.String(), Attempt: attempt,
			})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("chunk %d %s phase: %w", chunk.Index, p, ctxErr)
		}
		if isFatal(err) {
			return fmt.Errorf("chunk %d %s phase: %w", chunk.Index, p, err)
		}
		lastErr = err
		slog.Error("phase failed", "chunk", chunk.Index, "phase", p.String(), "attempt", attempt, "error", err)
	}

	return fmt.Errorf("chunk %d %s phase: %w after %d attempts: %w",
		chunk.Index, p, ErrRetriesExhausted, attempts, lastErr)
}

func (o *Orchestrator) attempt(ctx context.Context, chunk plan.Chunk, p phase) error {
	staging := o.ledger.StagingDir()

	role := volume.Source
	req := transfer.Request{Paths: chunk.Paths(), Options: o.cfg.Transfer}
	if p == phaseSource {
		// Anything in staging is a leftover of a failed attempt or an
		// interrupted run; the chunk is always re-staged from scratch.
		if err := resetDir(staging); err != nil {
			return fmt.Errorf("clear staging: %w", err)
		}
		req.DstRoot = staging
	} else {
		role = volume.Destination
		req.SrcRoot = staging
	}

	vol, err := o.volumes.Ensure(ctx, role)
	if err != nil {
		return err
	}
	if p == phaseSource {
		req.SrcRoot = vol.Root
	} else {
		req.DstRoot = vol.Root
	}

	if err := o.engine.Copy(ctx, req); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return o.volumes.Release(ctx, vol)
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}
