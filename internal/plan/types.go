// Package plan partitions a source tree into size-bounded chunks.
//
// Files are sorted by ascending size and packed greedily: many small files
// share the early chunks, and files larger than the budget end up alone in
// the last chunks. The resulting plan is persisted once and never recomputed
// while it exists.
package plan

// FileEntry is a regular file found under the source root.
type FileEntry struct {
	Path string `json:"path"` // slash-separated, relative to the source root
	Size int64  `json:"size"`
}

// Chunk is a sealed group of files transferred together.
type Chunk struct {
	Index int         `json:"index"`
	Files []FileEntry `json:"files"`
	Size  int64       `json:"size"` // cumulative size of Files
}

// Paths returns the member paths in plan order.
func (c Chunk) Paths() []string {
	paths := make([]string, len(c.Files))
	for i, f := range c.Files {
		paths[i] = f.Path
	}
	return paths
}

// Empty reports whether the chunk has no members.
func (c Chunk) Empty() bool { return len(c.Files) == 0 }

// Oversized reports whether the chunk exceeds budget. Only a chunk holding a
// single file larger than the budget may do so.
func (c Chunk) Oversized(budget int64) bool { return c.Size > budget }
