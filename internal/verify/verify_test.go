package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/volume"
)

type fakeVolumes struct {
	roots map[volume.Role]string
	calls []string
}

func (f *fakeVolumes) Ensure(_ context.Context, role volume.Role) (volume.Volume, error) {
	f.calls = append(f.calls, "ensure:"+role.String())
	return volume.Volume{Root: f.roots[role], Path: f.roots[role], Role: role}, nil
}

func (f *fakeVolumes) Release(_ context.Context, v volume.Volume) error {
	f.calls = append(f.calls, "release:"+v.Role.String())
	return nil
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newVolumes(t *testing.T) *fakeVolumes {
	t.Helper()
	return &fakeVolumes{roots: map[volume.Role]string{
		volume.Source:      t.TempDir(),
		volume.Destination: t.TempDir(),
	}}
}

func TestRun_AllMatch(t *testing.T) {
	vols := newVolumes(t)
	for _, root := range vols.roots {
		write(t, root, "a.txt", "alpha")
		write(t, root, "sub/b.txt", "beta")
	}
	write(t, vols.roots[volume.Destination], "extra", "only on destination")

	collector := stats.NewCollector()
	events := make(chan event.Event, 16)
	res, err := Run(context.Background(), Config{Volumes: vols, Workers: 2, Stats: collector, Events: events})
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, int64(2), res.Verified)
	assert.Equal(t, int64(2), collector.Snapshot().FilesVerified)
	assert.Equal(t, []string{
		"ensure:source", "release:source",
		"ensure:destination", "release:destination",
	}, vols.calls, "never both volumes at once")
}

func TestRun_ReportsDifferences(t *testing.T) {
	vols := newVolumes(t)
	src, dst := vols.roots[volume.Source], vols.roots[volume.Destination]
	write(t, src, "same", "x")
	write(t, dst, "same", "x")
	write(t, src, "missing", "m")
	write(t, src, "short", "12345")
	write(t, dst, "short", "12")
	write(t, src, "flipped", "abc")
	write(t, dst, "flipped", "abd")

	collector := stats.NewCollector()
	res, err := Run(context.Background(), Config{Volumes: vols, Stats: collector})
	require.NoError(t, err)

	assert.False(t, res.OK())
	assert.Equal(t, 3, res.Failed())
	assert.Equal(t, int64(1), res.Verified)
	assert.Equal(t, []string{"missing"}, res.Missing)
	assert.Equal(t, []string{"short"}, res.SizeMismatch)
	assert.Equal(t, []string{"flipped"}, res.ContentMismatch)
	assert.Equal(t, int64(3), collector.Snapshot().FilesVerifyFailed)
}

func TestRun_PlannedPathsOnly(t *testing.T) {
	vols := newVolumes(t)
	src, dst := vols.roots[volume.Source], vols.roots[volume.Destination]
	write(t, src, "planned", "p")
	write(t, dst, "planned", "p")
	write(t, src, "added-later", "not in the plan")

	res, err := Run(context.Background(), Config{Volumes: vols, Paths: []string{"planned"}})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, int64(1), res.Verified)
}

func TestBuildManifest(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a", "hello")
	write(t, root, "d/b", "")
	require.NoError(t, os.Symlink("a", filepath.Join(root, "link")))

	m, err := BuildManifest(context.Background(), root, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d/b"}, m.Paths())
	assert.Equal(t, int64(5), m["a"].Size)

	// Listed paths that do not exist are left out.
	m2, err := BuildManifest(context.Background(), root, []string{"a", "nope"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, m2.Paths())
	assert.Equal(t, m["a"], m2["a"])
}

func TestBuildManifest_Cancelled(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildManifest(ctx, root, []string{"a"}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompare_Empty(t *testing.T) {
	res := Compare(Manifest{}, Manifest{"x": {Size: 1}})
	assert.True(t, res.OK())
	assert.Zero(t, res.Verified)
}
