package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/plan"
)

func samplePlan() []Chunk {
	return []Chunk{
		{Index: 0, Files: []plan.FileEntry{{Path: "a", Size: 1}, {Path: "b", Size: 1}}, Size: 2},
		{Index: 1, Files: []plan.FileEntry{{Path: "c", Size: 2}}, Size: 2},
		{Index: 2, Files: []plan.FileEntry{{Path: "dir/d", Size: 3}}, Size: 3},
		{Index: 3, Files: []plan.FileEntry{{Path: "e", Size: 9}}, Size: 9},
	}
}

// backends runs fn once per ledger implementation.
func backends(t *testing.T, fn func(t *testing.T, l Ledger)) {
	t.Helper()
	t.Run("memfs", func(t *testing.T) {
		fn(t, NewDirLedger(memfs.New(), filepath.Join(t.TempDir(), "staging")))
	})
	t.Run("dir", func(t *testing.T) {
		l, err := OpenDir(t.TempDir())
		require.NoError(t, err)
		fn(t, l)
	})
	t.Run("sqlite", func(t *testing.T) {
		l, err := OpenSQLite(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { l.Close() })
		fn(t, l)
	})
}

func TestLedger_FreshIsUnplanned(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		planned, err := l.Planned()
		require.NoError(t, err)
		assert.False(t, planned)

		n, err := l.ChunkCount()
		require.NoError(t, err)
		assert.Zero(t, n)

		done, err := l.DoneIndices()
		require.NoError(t, err)
		assert.Empty(t, done)
	})
}

func TestLedger_SaveAndLoadPlan(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan(samplePlan()))

		planned, err := l.Planned()
		require.NoError(t, err)
		assert.True(t, planned)

		n, err := l.ChunkCount()
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		got, err := l.LoadPlan()
		require.NoError(t, err)
		assert.Equal(t, samplePlan(), got)

		c, err := l.Chunk(2)
		require.NoError(t, err)
		assert.Equal(t, []string{"dir/d"}, c.Paths())
	})
}

func TestLedger_SavePlanTwiceFails(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan(samplePlan()))
		assert.ErrorIs(t, l.SavePlan(samplePlan()[:1]), ErrPlanExists)

		n, err := l.ChunkCount()
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}

func TestLedger_SaveEmptyChunk(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan([]Chunk{{Index: 0}}))

		c, err := l.Chunk(0)
		require.NoError(t, err)
		assert.True(t, c.Empty())
	})
}

func TestLedger_SavePlanRejectsMisnumbered(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		err := l.SavePlan([]Chunk{{Index: 1}})
		require.Error(t, err)

		planned, err := l.Planned()
		require.NoError(t, err)
		assert.False(t, planned)
	})
}

func TestLedger_MarkDone(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan(samplePlan()))

		done, err := l.IsDone(1)
		require.NoError(t, err)
		assert.False(t, done)

		require.NoError(t, l.MarkDone(1))
		require.NoError(t, l.MarkDone(0))
		// Marking twice is harmless.
		require.NoError(t, l.MarkDone(1))

		done, err = l.IsDone(1)
		require.NoError(t, err)
		assert.True(t, done)

		indices, err := l.DoneIndices()
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, indices)
	})
}

func TestLedger_MarkDoneUnknownChunk(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan(samplePlan()))
		assert.ErrorIs(t, l.MarkDone(7), ErrChunkNotFound)
	})
}

func TestLedger_ChunkNotFound(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan(samplePlan()))
		_, err := l.Chunk(10)
		assert.ErrorIs(t, err, ErrChunkNotFound)
	})
}

func TestLedger_ListChunks(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan(samplePlan()))
		require.NoError(t, l.MarkDone(0))

		infos, err := l.ListChunks()
		require.NoError(t, err)
		require.Len(t, infos, 4)
		assert.Equal(t, ChunkInfo{Index: 0, Files: 2, Size: 2, Done: true}, infos[0])
		assert.Equal(t, ChunkInfo{Index: 3, Files: 1, Size: 9, Done: false}, infos[3])
	})
}

func TestLedger_Check(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan(samplePlan()))
		require.NoError(t, l.MarkDone(0))
		require.NoError(t, l.MarkDone(1))

		issues, err := l.Check()
		require.NoError(t, err)
		assert.Empty(t, issues)

		// Chunk 2 left pending while 3 is done.
		require.NoError(t, l.MarkDone(3))
		issues, err = l.Check()
		require.NoError(t, err)
		assert.Equal(t, []Inconsistency{{Kind: Gap, Index: 2}}, issues)
	})
}

func TestLedger_ResetClearsEverything(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		require.NoError(t, l.SavePlan(samplePlan()))
		require.NoError(t, l.MarkDone(0))
		require.NoError(t, l.MarkDone(1))
		require.NoError(t, os.MkdirAll(l.StagingDir(), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(l.StagingDir(), "x"), []byte("x"), 0o644))

		require.NoError(t, l.Reset())

		planned, err := l.Planned()
		require.NoError(t, err)
		assert.False(t, planned)
		done, err := l.DoneIndices()
		require.NoError(t, err)
		assert.Empty(t, done)
		assert.NoDirExists(t, l.StagingDir())

		// A new plan can be saved after reset.
		require.NoError(t, l.SavePlan(samplePlan()[:2]))
		n, err := l.ChunkCount()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestFindInconsistencies(t *testing.T) {
	tests := []struct {
		name  string
		count int
		done  []int
		want  []Inconsistency
	}{
		{name: "none done", count: 3},
		{name: "prefix done", count: 3, done: []int{0, 1}},
		{name: "all done", count: 3, done: []int{0, 1, 2}},
		{
			name:  "orphan marker",
			count: 2,
			done:  []int{0, 1, 5},
			want:  []Inconsistency{{Kind: OrphanMarker, Index: 5}},
		},
		{
			name:  "gaps",
			count: 5,
			done:  []int{1, 4},
			want: []Inconsistency{
				{Kind: Gap, Index: 0},
				{Kind: Gap, Index: 2},
				{Kind: Gap, Index: 3},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findInconsistencies(tt.count, tt.done))
		})
	}
}

func TestInconsistency_String(t *testing.T) {
	assert.Contains(t, Inconsistency{Kind: OrphanMarker, Index: 3}.String(), "no chunk record")
	assert.Contains(t, Inconsistency{Kind: Gap, Index: 1}.String(), "later chunk")
	assert.Equal(t, "gap", Gap.String())
}

func TestOpen(t *testing.T) {
	l, err := Open(KindDir, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &DirLedger{}, l)

	l, err = Open(KindSQLite, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteLedger{}, l)
	require.NoError(t, l.Close())

	_, err = Open("bogus", t.TempDir())
	assert.Error(t, err)
}
