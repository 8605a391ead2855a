// Package ledger persists the chunk plan and per-chunk completion markers so
// that an interrupted run can resume where it stopped.
//
// A chunk is done only when its marker exists. Markers are written with
// create-then-rename (DirLedger) or a single committed INSERT (SQLiteLedger),
// so a crash never leaves a marker that reads as done but was not finished.
package ledger

import (
	"errors"
	"fmt"

	"github.com/bamsammich/ferry/internal/plan"
)

// Backend kinds accepted by Open.
const (
	KindDir    = "dir"
	KindSQLite = "sqlite"
)

var (
	// ErrPlanExists is returned by SavePlan when a plan is already persisted.
	ErrPlanExists = errors.New("plan already exists")
	// ErrChunkNotFound is returned for an index with no chunk record.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrCorruptChunk is returned when a chunk record fails to decode or
	// its checksum does not match.
	ErrCorruptChunk = errors.New("corrupt chunk record")
)

// Ledger is the durable progress store of a run.
type Ledger interface {
	plan.Store

	// ChunkCount returns the number of chunk records on disk.
	ChunkCount() (int, error)
	// Chunk loads one chunk record.
	Chunk(index int) (plan.Chunk, error)
	// ListChunks returns per-chunk metadata in index order.
	ListChunks() ([]ChunkInfo, error)
	// IsDone reports whether the done marker for index exists.
	IsDone(index int) (bool, error)
	// MarkDone sets the done marker for index.
	MarkDone(index int) error
	// DoneIndices returns the indices of all done markers, ascending.
	DoneIndices() ([]int, error)
	// Check reports markers without a chunk record and gaps in the done set.
	Check() ([]Inconsistency, error)
	// Reset deletes the plan, every marker and the staging area.
	Reset() error
	// StagingDir is the local directory holding the chunk in transit.
	StagingDir() string
	// Close releases resources held by the ledger.
	Close() error
}

// ChunkInfo is the metadata of one chunk record.
type ChunkInfo struct {
	Index int
	Files int
	Size  int64
	Done  bool
}

// InconsistencyKind classifies a ledger inconsistency.
type InconsistencyKind int

const (
	// OrphanMarker is a done marker whose index has no chunk record.
	OrphanMarker InconsistencyKind = iota + 1
	// Gap is a chunk that is not done although a later chunk is.
	Gap
)

func (k InconsistencyKind) String() string {
	switch k {
	case OrphanMarker:
		return "orphan-marker"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}

// Inconsistency describes one problem found by Check.
type Inconsistency struct {
	Kind  InconsistencyKind
	Index int
}

func (i Inconsistency) String() string {
	switch i.Kind {
	case OrphanMarker:
		return fmt.Sprintf("done marker %d has no chunk record", i.Index)
	case Gap:
		return fmt.Sprintf("chunk %d is not done but a later chunk is", i.Index)
	default:
		return fmt.Sprintf("unknown inconsistency at %d", i.Index)
	}
}

// Open opens the ledger of the given kind rooted at stateDir.
//
//nolint:ireturn // backend chosen by kind
func Open(kind, stateDir string) (Ledger, error) {
	switch kind {
	case "", KindDir:
		return OpenDir(stateDir)
	case KindSQLite:
		return OpenSQLite(stateDir)
	default:
		return nil, fmt.Errorf("unknown ledger kind %q (use %s or %s)", kind, KindDir, KindSQLite)
	}
}

// findInconsistencies compares a chunk count with the done set.
func findInconsistencies(count int, done []int) []Inconsistency {
	var out []Inconsistency
	isDone := make(map[int]bool, len(done))
	highest := -1
	for _, i := range done {
		isDone[i] = true
		if i >= count || i < 0 {
			out = append(out, Inconsistency{Kind: OrphanMarker, Index: i})
			continue
		}
		highest = max(highest, i)
	}
	for i := range highest {
		if !isDone[i] {
			out = append(out, Inconsistency{Kind: Gap, Index: i})
		}
	}
	return out
}

func listChunks(l Ledger) ([]ChunkInfo, error) {
	count, err := l.ChunkCount()
	if err != nil {
		return nil, err
	}
	done, err := l.DoneIndices()
	if err != nil {
		return nil, err
	}
	isDone := make(map[int]bool, len(done))
	for _, i := range done {
		isDone[i] = true
	}

	infos := make([]ChunkInfo, 0, count)
	for i := range count {
		c, err := l.Chunk(i)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ChunkInfo{Index: i, Files: len(c.Files), Size: c.Size, Done: isDone[i]})
	}
	return infos, nil
}

func loadPlan(l Ledger) ([]plan.Chunk, error) {
	count, err := l.ChunkCount()
	if err != nil {
		return nil, err
	}
	chunks := make([]plan.Chunk, 0, count)
	for i := range count {
		c, err := l.Chunk(i)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Chunk is the persisted form of a planned chunk.
type Chunk = plan.Chunk
