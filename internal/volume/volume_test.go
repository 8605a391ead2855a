package volume

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/command"
)

func newWaiter(t *testing.T) *Waiter {
	t.Helper()
	return &Waiter{Root: t.TempDir(), PollInterval: 10 * time.Millisecond}
}

func TestTakeSnapshot_MissingRootIsEmpty(t *testing.T) {
	snap, err := TakeSnapshot(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestSnapshot_NamesSorted(t *testing.T) {
	s := Snapshot{"b": {}, "a": {}, "c": {}}
	assert.Equal(t, []string{"a", "b", "c"}, s.Names())
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("z"))
}

func TestWaiter_DetectsNewDirectory(t *testing.T) {
	w := newWaiter(t)
	require.NoError(t, os.Mkdir(filepath.Join(w.Root, "EXISTING"), 0o755))
	prior, err := w.Snapshot()
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		os.Mkdir(filepath.Join(w.Root, "USB"), 0o755) //nolint:errcheck
	}()

	v, err := w.DetectNewMount(context.Background(), prior, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "USB", v.Name)
	assert.Equal(t, filepath.Join(w.Root, "USB"), v.Path)
	assert.Equal(t, v.Path, v.Root)
}

func TestWaiter_FirstNewEntryInNameOrder(t *testing.T) {
	w := newWaiter(t)
	prior, err := w.Snapshot()
	require.NoError(t, err)
	for _, n := range []string{"zeta", "beta", "alpha"} {
		require.NoError(t, os.Mkdir(filepath.Join(w.Root, n), 0o755))
	}

	v, err := w.DetectNewMount(context.Background(), prior, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "alpha", v.Name)
}

func TestWaiter_IgnoresFilesAndKnownEntries(t *testing.T) {
	w := newWaiter(t)
	require.NoError(t, os.Mkdir(filepath.Join(w.Root, "old"), 0o755))
	prior, err := w.Snapshot()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(w.Root, "aaa-file"), nil, 0o644))

	_, err = w.DetectNewMount(context.Background(), prior, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrMountTimeout)
}

func TestWaiter_Timeout(t *testing.T) {
	w := newWaiter(t)
	start := time.Now()
	_, err := w.DetectNewMount(context.Background(), Snapshot{}, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrMountTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaiter_RequireMountPoint(t *testing.T) {
	w := newWaiter(t)
	w.RequireMountPoint = true
	require.NoError(t, os.Mkdir(filepath.Join(w.Root, "not-a-mount"), 0o755))

	_, err := w.DetectNewMount(context.Background(), Snapshot{}, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrMountTimeout)
}

func TestWaiter_ContextCancelled(t *testing.T) {
	w := newWaiter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.DetectNewMount(ctx, Snapshot{}, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaiter_MissingRootAppearsLater(t *testing.T) {
	base := t.TempDir()
	w := &Waiter{Root: filepath.Join(base, "media"), PollInterval: 10 * time.Millisecond}
	prior, err := w.Snapshot()
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		os.MkdirAll(filepath.Join(w.Root, "DISK"), 0o755) //nolint:errcheck
	}()

	v, err := w.DetectNewMount(context.Background(), prior, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "DISK", v.Name)
}

func TestParseMounts(t *testing.T) {
	in := strings.Join([]string{
		"/dev/sda2 / ext4 rw,relatime 0 0",
		`/dev/sdb1 /media/u/MY\040DISK vfat rw,nosuid 0 0`,
		"proc /proc proc rw 0 0",
		"",
	}, "\n")
	entries, err := ParseMounts(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, MountEntry{Device: "/dev/sdb1", MountPoint: "/media/u/MY DISK", FSType: "vfat"}, entries[1])
}

func TestDeviceFor(t *testing.T) {
	mounts := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(mounts, []byte(
		"/dev/sdb1 /media/u/DISK vfat rw 0 0\n/dev/sdc1 /media/u/DISK vfat rw 0 0\n"), 0o644))

	dev, err := DeviceFor(mounts, "/media/u/DISK/")
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdc1", dev)

	_, err = DeviceFor(mounts, "/media/u/OTHER")
	assert.Error(t, err)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (*command.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.fail {
		return &command.Result{ExitCode: 1}, errors.New("device busy")
	}
	return &command.Result{}, nil
}

func TestEjector_SubstitutesDevice(t *testing.T) {
	mounts := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(mounts, []byte("/dev/sdb1 /media/u/DISK vfat rw 0 0\n"), 0o644))

	r := &fakeRunner{}
	e := &Ejector{
		Runner:     r,
		MountsFile: mounts,
		Commands:   [][]string{{"umount", "{device}"}, {"poweroff", "{device}", "{path}"}},
	}
	require.NoError(t, e.Eject(context.Background(), Volume{Path: "/media/u/DISK"}))
	assert.Equal(t, [][]string{
		{"umount", "/dev/sdb1"},
		{"poweroff", "/dev/sdb1", "/media/u/DISK"},
	}, r.calls)
}

func TestEjector_UnknownDevice(t *testing.T) {
	r := &fakeRunner{}
	e := &Ejector{Runner: r, Commands: [][]string{{"umount", "{device}"}}}
	err := e.Eject(context.Background(), Volume{Path: "/nowhere"})
	require.Error(t, err)
	assert.Empty(t, r.calls)
}

func TestEjector_StopsAtFirstFailure(t *testing.T) {
	r := &fakeRunner{fail: true}
	e := &Ejector{Runner: r, Commands: [][]string{{"a", "{path}"}, {"b"}}}
	require.Error(t, e.Eject(context.Background(), Volume{Path: "/p"}))
	assert.Len(t, r.calls, 1)
}

func TestLinePrompter(t *testing.T) {
	var out strings.Builder
	p := NewLinePrompter(strings.NewReader("\nok\n"), &out)

	require.NoError(t, p.Confirm(context.Background(), "Insert the source volume"))
	require.NoError(t, p.Confirm(context.Background(), "Remove the source volume"))
	assert.Contains(t, out.String(), "Insert the source volume")
	assert.Contains(t, out.String(), "Remove the source volume")

	err := p.Confirm(context.Background(), "again")
	assert.Error(t, err)
}

func TestLinePrompter_ContextCancelled(t *testing.T) {
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pw.Close()
	defer pr.Close()

	p := NewLinePrompter(pr, &strings.Builder{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Confirm(ctx, "Insert"), context.DeadlineExceeded)
}

type statusWriter struct {
	strings.Builder
	suspended, resumed int
}

func (w *statusWriter) Suspend() { w.suspended++ }
func (w *statusWriter) Resume()  { w.resumed++ }

func TestLinePrompter_SuspendsStatusLine(t *testing.T) {
	out := &statusWriter{}
	p := NewLinePrompter(strings.NewReader("\n"), out)

	require.NoError(t, p.Confirm(context.Background(), "Insert the destination volume"))
	assert.Equal(t, 1, out.suspended)
	assert.Equal(t, 1, out.resumed)
	assert.Equal(t, "Insert the destination volume, then press Enter ", out.String())
}
