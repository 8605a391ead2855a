package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bamsammich/ferry/internal/units"
)

// Store persists a plan. It is implemented by the progress ledger.
type Store interface {
	// Planned reports whether a complete plan is already persisted.
	Planned() (bool, error)
	// SavePlan persists all chunks or none of them.
	SavePlan(chunks []Chunk) error
	// LoadPlan returns the persisted chunks in index order.
	LoadPlan() ([]Chunk, error)
}

// Planner produces the chunk plan for a run, at most once per ledger.
type Planner struct {
	store   Store
	workers int
	filter  Matcher
}

// NewPlanner creates a planner persisting to store. workers <= 0 picks a
// default scan parallelism.
func NewPlanner(store Store, workers int) *Planner {
	return &Planner{store: store, workers: workers}
}

// WithFilter makes the planner skip paths m rejects. It returns p.
func (p *Planner) WithFilter(m Matcher) *Planner {
	p.filter = m
	return p
}

// Plan returns the chunk plan for sourceRoot. If a plan already exists it is
// returned unchanged without scanning the source. Otherwise the source is
// scanned, partitioned and persisted before returning. A scan failure aborts
// without persisting anything.
func (p *Planner) Plan(ctx context.Context, sourceRoot string, budget int64) ([]Chunk, error) {
	if budget <= 0 {
		return nil, ErrInvalidBudget
	}

	planned, err := p.store.Planned()
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	if planned {
		chunks, err := p.store.LoadPlan()
		if err != nil {
			return nil, fmt.Errorf("load plan: %w", err)
		}
		slog.Warn("resuming existing plan; changes made to the source since planning are not reflected",
			"chunks", len(chunks))
		return chunks, nil
	}

	slog.Info("scanning source", "root", sourceRoot)
	files, err := NewScanner(ScannerConfig{Root: sourceRoot, Workers: p.workers, Filter: p.filter}).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate source %s: %w", sourceRoot, err)
	}

	chunks, err := Partition(files, budget)
	if err != nil {
		return nil, err
	}
	if err := p.store.SavePlan(chunks); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	sum := Summarize(chunks, budget)
	slog.Info("planned transfer",
		"chunks", sum.Chunks,
		"files", sum.Files,
		"size", units.FormatBytes(sum.Bytes),
		"budget", units.FormatBytes(budget),
	)
	if sum.Oversized > 0 {
		slog.Warn("some files exceed the chunk budget and are transferred alone",
			"chunks", sum.Oversized,
			"largest", units.FormatBytes(sum.Largest),
		)
	}
	return chunks, nil
}
