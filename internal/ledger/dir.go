package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
)

const (
	chunksDir   = "chunks"
	doneDir     = "done"
	stagingName = "staging"
	planMarker  = "PLAN"
	chunkPrefix = "chunk-"
	listSuffix  = ".list"
	doneSuffix  = ".done"
)

// DirLedger keeps the plan and markers as files under a state directory.
type DirLedger struct {
	fs      billy.Filesystem
	root    string // OS path of fs, used to fsync directories; empty for in-memory filesystems
	staging string
}

// OpenDir opens a DirLedger rooted at stateDir, creating it if necessary.
func OpenDir(stateDir string) (*DirLedger, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	l := NewDirLedger(osfs.New(stateDir), filepath.Join(stateDir, stagingName))
	l.root = stateDir
	return l, nil
}

// NewDirLedger returns a DirLedger over fs. stagingDir is an OS path since
// the transfer engine works on the real filesystem.
func NewDirLedger(fs billy.Filesystem, stagingDir string) *DirLedger {
	return &DirLedger{fs: fs, staging: stagingDir}
}

func chunkName(index int) string { return fmt.Sprintf("%s%06d%s", chunkPrefix, index, listSuffix) }
func doneName(index int) string  { return fmt.Sprintf("%s%06d%s", chunkPrefix, index, doneSuffix) }

func (l *DirLedger) Planned() (bool, error) {
	return l.exists(l.fs.Join(chunksDir, planMarker))
}

// SavePlan writes one record per chunk, then the PLAN marker. Records left
// by an earlier SavePlan that never wrote its marker are discarded first.
func (l *DirLedger) SavePlan(chunks []Chunk) error {
	planned, err := l.Planned()
	if err != nil {
		return err
	}
	if planned {
		return ErrPlanExists
	}

	if err := util.RemoveAll(l.fs, chunksDir); err != nil {
		return fmt.Errorf("discard incomplete plan: %w", err)
	}
	stale, err := l.DoneIndices()
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		slog.Warn("discarding done markers without a plan", "markers", len(stale))
		if err := util.RemoveAll(l.fs, doneDir); err != nil {
			return fmt.Errorf("discard stale markers: %w", err)
		}
	}

	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("chunk at position %d has index %d", i, c.Index)
		}
		data, err := encodeChunk(c)
		if err != nil {
			return err
		}
		if err := l.writeAtomic(l.fs.Join(chunksDir, chunkName(i)), data); err != nil {
			return fmt.Errorf("write chunk %d: %w", i, err)
		}
	}

	marker := []byte("chunks=" + strconv.Itoa(len(chunks)) + "\n")
	if err := l.writeAtomic(l.fs.Join(chunksDir, planMarker), marker); err != nil {
		return fmt.Errorf("commit plan: %w", err)
	}
	return nil
}

func (l *DirLedger) LoadPlan() ([]Chunk, error) { return loadPlan(l) }

func (l *DirLedger) ChunkCount() (int, error) {
	planned, err := l.Planned()
	if err != nil || !planned {
		return 0, err
	}
	indices, err := l.listIndices(chunksDir, listSuffix)
	if err != nil {
		return 0, err
	}
	for want, got := range indices {
		if want != got {
			return 0, fmt.Errorf("%w %d: record missing from %s", ErrCorruptChunk, want, chunksDir)
		}
	}
	return len(indices), nil
}

func (l *DirLedger) Chunk(index int) (Chunk, error) {
	f, err := l.fs.Open(l.fs.Join(chunksDir, chunkName(index)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Chunk{}, fmt.Errorf("%w: %d", ErrChunkNotFound, index)
		}
		return Chunk{}, fmt.Errorf("open chunk %d: %w", index, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Chunk{}, fmt.Errorf("read chunk %d: %w", index, err)
	}
	return decodeChunk(data, index)
}

func (l *DirLedger) ListChunks() ([]ChunkInfo, error) { return listChunks(l) }

func (l *DirLedger) IsDone(index int) (bool, error) {
	return l.exists(l.fs.Join(doneDir, doneName(index)))
}

func (l *DirLedger) MarkDone(index int) error {
	ok, err := l.exists(l.fs.Join(chunksDir, chunkName(index)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mark done: %w: %d", ErrChunkNotFound, index)
	}
	if err := l.writeAtomic(l.fs.Join(doneDir, doneName(index)), nil); err != nil {
		return fmt.Errorf("mark chunk %d done: %w", index, err)
	}
	return nil
}

func (l *DirLedger) DoneIndices() ([]int, error) {
	return l.listIndices(doneDir, doneSuffix)
}

func (l *DirLedger) Check() ([]Inconsistency, error) {
	indices, err := l.listIndices(chunksDir, listSuffix)
	if err != nil {
		return nil, err
	}
	done, err := l.DoneIndices()
	if err != nil {
		return nil, err
	}
	count := 0
	for count < len(indices) && indices[count] == count {
		count++
	}
	return findInconsistencies(count, done), nil
}

func (l *DirLedger) Reset() error {
	for _, dir := range []string{chunksDir, doneDir} {
		if err := util.RemoveAll(l.fs, dir); err != nil {
			return fmt.Errorf("reset %s: %w", dir, err)
		}
	}
	if err := os.RemoveAll(l.staging); err != nil {
		return fmt.Errorf("reset staging: %w", err)
	}
	return nil
}

func (l *DirLedger) StagingDir() string { return l.staging }

func (l *DirLedger) Close() error { return nil }

func (l *DirLedger) exists(name string) (bool, error) {
	_, err := l.fs.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", name, err)
}

// listIndices returns the sorted indices of dir entries named
// chunk-NNNNNN<suffix>. Temp files and foreign names are ignored.
func (l *DirLedger) listIndices(dir, suffix string) ([]int, error) {
	entries, err := l.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, chunkPrefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, chunkPrefix), suffix))
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return out, nil
}

// writeAtomic writes data to a uniquely named temp file in the same
// directory, syncs it and renames it over name.
func (l *DirLedger) writeAtomic(name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := l.fs.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp := l.fs.Join(dir, "."+filepath.Base(name)+"."+uuid.NewString()[:8]+".tmp")

	f, err := l.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		l.fs.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return err
	}
	if s, ok := f.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			f.Close()
			l.fs.Remove(tmp) //nolint:errcheck // best-effort cleanup
			return err
		}
	}
	if err := f.Close(); err != nil {
		l.fs.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := l.fs.Rename(tmp, name); err != nil {
		l.fs.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return err
	}
	l.syncDir(dir)
	return nil
}

// syncDir makes a rename durable on the real filesystem.
func (l *DirLedger) syncDir(dir string) {
	if l.root == "" {
		return
	}
	d, err := os.Open(filepath.Join(l.root, dir))
	if err != nil {
		return
	}
	d.Sync() //nolint:errcheck // not all filesystems support directory fsync
	d.Close()
}
