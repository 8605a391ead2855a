package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bamsammich/ferry/internal/ledger"
	"github.com/bamsammich/ferry/internal/plan"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/volume"
)

// memLedger is an in-memory Ledger.
type memLedger struct {
	chunks  []plan.Chunk
	done    map[int]bool
	marks   []int
	staging string
	markErr error
}

func newMemLedger(t *testing.T, chunks []plan.Chunk, done ...int) *memLedger {
	t.Helper()
	l := &memLedger{
		chunks:  chunks,
		done:    make(map[int]bool),
		staging: filepath.Join(t.TempDir(), "staging"),
	}
	for _, i := range done {
		l.done[i] = true
	}
	return l
}

func (l *memLedger) Planned() (bool, error)   { return l.chunks != nil, nil }
func (l *memLedger) ChunkCount() (int, error) { return len(l.chunks), nil }
func (l *memLedger) StagingDir() string       { return l.staging }

func (l *memLedger) Chunk(i int) (plan.Chunk, error) {
	if i < 0 || i >= len(l.chunks) {
		return plan.Chunk{}, ledger.ErrChunkNotFound
	}
	return l.chunks[i], nil
}

func (l *memLedger) IsDone(i int) (bool, error) { return l.done[i], nil }

func (l *memLedger) MarkDone(i int) error {
	if l.markErr != nil {
		return l.markErr
	}
	l.done[i] = true
	l.marks = append(l.marks, i)
	return nil
}

func (l *memLedger) Check() ([]ledger.Inconsistency, error) { return nil, nil }

// fakeVolumes hands out fixed directories and records every call.
type fakeVolumes struct {
	mu        sync.Mutex
	roots     map[volume.Role]string
	calls     []string
	ensureErr map[volume.Role]error
}

func newFakeVolumes(t *testing.T) *fakeVolumes {
	t.Helper()
	return &fakeVolumes{
		roots: map[volume.Role]string{
			volume.Source:      t.TempDir(),
			volume.Destination: t.TempDir(),
		},
		ensureErr: make(map[volume.Role]error),
	}
}

func (f *fakeVolumes) Ensure(_ context.Context, role volume.Role) (volume.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "ensure:"+role.String())
	if err := f.ensureErr[role]; err != nil {
		return volume.Volume{}, err
	}
	root := f.roots[role]
	return volume.Volume{Name: role.String(), Path: root, Root: root, Role: role}, nil
}

func (f *fakeVolumes) Release(_ context.Context, v volume.Volume) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "release:"+v.Role.String())
	return nil
}

// fakeEngine records requests and delegates to fn when set.
type fakeEngine struct {
	mu   sync.Mutex
	reqs []transfer.Request
	fn   func(n int, req transfer.Request) error
}

func (e *fakeEngine) Copy(_ context.Context, req transfer.Request) error {
	e.mu.Lock()
	n := len(e.reqs)
	e.reqs = append(e.reqs, req)
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		return fn(n, req)
	}
	return nil
}

var errEngine = errors.New("engine failure")

// chunksOf builds chunks with one file each, named f<i>.
func chunksOf(n int) []plan.Chunk {
	out := make([]plan.Chunk, n)
	for i := range out {
		name := "f" + string(rune('0'+i))
		out[i] = plan.Chunk{Index: i, Files: []plan.FileEntry{{Path: name, Size: 1}}, Size: 1}
	}
	return out
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
