package volume

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bamsammich/ferry/internal/platform"
)

const defaultPollInterval = 500 * time.Millisecond

// Waiter detects new volumes under a media root.
type Waiter struct {
	Root string
	// RequireMountPoint ignores new entries that are plain directories on
	// the media root's own filesystem.
	RequireMountPoint bool
	PollInterval      time.Duration
}

// Snapshot lists the media root.
func (w *Waiter) Snapshot() (Snapshot, error) {
	return TakeSnapshot(w.Root)
}

// DetectNewMount waits until an entry not present in prior appears under
// the media root and returns it. Candidates are considered in name order.
// Returns ErrMountTimeout after timeout.
func (w *Waiter) DetectNewMount(ctx context.Context, prior Snapshot, timeout time.Duration) (Volume, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	interval := w.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(w.Root); err == nil {
			events, errs = watcher.Events, watcher.Errors
		} else {
			slog.Debug("media root not watchable, polling", "root", w.Root, "error", err)
		}
	}

	for {
		v, ok, err := w.findNew(prior)
		if err != nil {
			return Volume{}, err
		}
		if ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return Volume{}, ctx.Err()
		case <-deadline.C:
			return Volume{}, ErrMountTimeout
		case <-tick.C:
		case _, open := <-events:
			if !open {
				events = nil
			}
		case err, open := <-errs:
			if !open {
				errs = nil
				continue
			}
			slog.Debug("media root watch error", "error", err)
		}
	}
}

func (w *Waiter) findNew(prior Snapshot) (Volume, bool, error) {
	now, err := TakeSnapshot(w.Root)
	if err != nil {
		return Volume{}, false, err
	}
	for _, name := range now.Names() {
		if prior.Has(name) {
			continue
		}
		path := filepath.Join(w.Root, name)
		if !w.usable(path) {
			continue
		}
		return Volume{Name: name, Path: path, Root: path}, true, nil
	}
	return Volume{}, false, nil
}

// usable reports whether path is a directory that can serve as a volume.
func (w *Waiter) usable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if !w.RequireMountPoint {
		return true
	}
	mp, err := platform.IsMountPoint(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("mount point check failed", "path", path, "error", err)
	}
	return mp
}

// Attached returns the usable volumes listed in snap, in name order.
func (w *Waiter) Attached(snap Snapshot) []Volume {
	var out []Volume
	for _, name := range snap.Names() {
		path := filepath.Join(w.Root, name)
		if w.usable(path) {
			out = append(out, Volume{Name: name, Path: path, Root: path})
		}
	}
	return out
}

// Mounted reports whether v is still present under the media root.
func (w *Waiter) Mounted(v Volume) bool {
	return w.usable(v.Path)
}
