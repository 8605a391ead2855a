package plan

import (
	"cmp"
	"errors"
	"slices"
	"strings"
)

// ErrInvalidBudget is returned for a chunk budget that is not positive.
var ErrInvalidBudget = errors.New("chunk budget must be positive")

// SortForPacking orders files by ascending size, then path, in place.
func SortForPacking(files []FileEntry) {
	slices.SortFunc(files, func(a, b FileEntry) int {
		if c := cmp.Compare(a.Size, b.Size); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
}

// Partition packs files into chunks of at most budget bytes. Files are
// taken in ascending size order; a chunk is closed as soon as the next file
// would push it over budget, even if that leaves it well under. A file
// larger than the budget gets a chunk of its own. No files yields a single
// empty chunk. files is not modified.
func Partition(files []FileEntry, budget int64) ([]Chunk, error) {
	if budget <= 0 {
		return nil, ErrInvalidBudget
	}

	sorted := slices.Clone(files)
	SortForPacking(sorted)

	chunks := []Chunk{{Index: 0}}
	for _, f := range sorted {
		cur := &chunks[len(chunks)-1]
		if !cur.Empty() && cur.Size+f.Size > budget {
			chunks = append(chunks, Chunk{Index: len(chunks)})
			cur = &chunks[len(chunks)-1]
		}
		cur.Files = append(cur.Files, f)
		cur.Size += f.Size
	}
	return chunks, nil
}

// Summary describes a plan for logging and the status command.
type Summary struct {
	Chunks    int
	Files     int
	Bytes     int64
	Oversized int // chunks that exceed the budget because of a single file
	Largest   int64
}

// Summarize computes a Summary of chunks against budget.
func Summarize(chunks []Chunk, budget int64) Summary {
	s := Summary{Chunks: len(chunks)}
	for _, c := range chunks {
		s.Files += len(c.Files)
		s.Bytes += c.Size
		s.Largest = max(s.Largest, c.Size)
		if budget > 0 && c.Oversized(budget) {
			s.Oversized++
		}
	}
	return s
}
