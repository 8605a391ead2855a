// Package verify compares the finished destination against the source.
// Since the two volumes are never attached together, it builds a manifest
// of the source first, releases it, and then checks the destination
// against the manifest.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/ui"
	"github.com/bamsammich/ferry/internal/volume"
)

// Volumes attaches and releases the removable volumes.
type Volumes interface {
	Ensure(ctx context.Context, role volume.Role) (volume.Volume, error)
	Release(ctx context.Context, v volume.Volume) error
}

// Entry is the manifest record of one file.
type Entry struct {
	Size   int64
	Digest uint64
}

// Manifest maps slash-separated relative paths to entries.
type Manifest map[string]Entry

// Paths returns the manifest paths in sorted order.
func (m Manifest) Paths() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Result is the outcome of a comparison.
type Result struct {
	Verified        int64
	Missing         []string
	SizeMismatch    []string
	ContentMismatch []string
}

// Failed is the number of files that did not match.
func (r Result) Failed() int {
	return len(r.Missing) + len(r.SizeMismatch) + len(r.ContentMismatch)
}

// OK reports whether every file matched.
func (r Result) OK() bool { return r.Failed() == 0 }

// Config configures a verification pass.
type Config struct {
	Volumes Volumes
	// Paths limits the source manifest to the planned files. Nil reads the
	// whole source tree.
	Paths   []string
	Workers int
	Events  chan<- event.Event
	Stats   *stats.Collector
}

// Run mounts the source, builds its manifest, releases it, mounts the
// destination and compares. Differences are reported in the Result, not as
// an error; errors mean verification could not be completed.
func Run(ctx context.Context, cfg Config) (Result, error) {
	event.Emit(cfg.Events, event.Event{Type: event.VerifyStarted})
	slog.Info("verify: reading source")

	src, err := cfg.Volumes.Ensure(ctx, volume.Source)
	if err != nil {
		return Result{}, err
	}
	want, err := BuildManifest(ctx, src.Root, cfg.Paths, cfg.Workers)
	if err != nil {
		return Result{}, fmt.Errorf("source manifest: %w", err)
	}
	if err := cfg.Volumes.Release(ctx, src); err != nil {
		return Result{}, err
	}

	slog.Info("verify: checking destination", "files", len(want))
	dst, err := cfg.Volumes.Ensure(ctx, volume.Destination)
	if err != nil {
		return Result{}, err
	}
	got, err := BuildManifest(ctx, dst.Root, want.Paths(), cfg.Workers)
	if err != nil {
		return Result{}, fmt.Errorf("destination manifest: %w", err)
	}
	if err := cfg.Volumes.Release(ctx, dst); err != nil {
		return Result{}, err
	}

	res := Compare(want, got)
	report(ctx, cfg, res)
	return res, nil
}

// Compare checks every path in want against got.
func Compare(want, got Manifest) Result {
	var res Result
	for _, p := range want.Paths() {
		w := want[p]
		g, ok := got[p]
		switch {
		case !ok:
			res.Missing = append(res.Missing, p)
		case g.Size != w.Size:
			res.SizeMismatch = append(res.SizeMismatch, p)
		case g.Digest != w.Digest:
			res.ContentMismatch = append(res.ContentMismatch, p)
		default:
			res.Verified++
		}
	}
	return res
}

const maxReported = 20

func report(ctx context.Context, cfg Config, res Result) {
	emit := func(paths []string, reason string) {
		for i, p := range paths {
			if cfg.Stats != nil {
				cfg.Stats.AddFilesVerifyFailed(1)
			}
			event.Emit(cfg.Events, event.Event{Type: event.VerifyFailed, Path: p, Error: errors.New(reason)})
			if i < maxReported {
				slog.Warn("verify: "+reason, "path", p)
			}
		}
		if len(paths) > maxReported {
			slog.Warn("verify: more files "+reason, "count", len(paths)-maxReported)
		}
	}
	emit(res.Missing, "missing")
	emit(res.SizeMismatch, "size differs")
	emit(res.ContentMismatch, "content differs")

	if cfg.Stats != nil {
		cfg.Stats.AddFilesVerified(res.Verified)
	}
	event.Emit(cfg.Events, event.Event{Type: event.VerifyOK, Files: int(res.Verified)})

	if res.OK() {
		slog.Log(ctx, ui.LevelSuccess, "verify: all files match", "files", res.Verified)
		return
	}
	slog.Warn("verify: differences found",
		"verified", res.Verified,
		"missing", len(res.Missing),
		"size_mismatch", len(res.SizeMismatch),
		"content_mismatch", len(res.ContentMismatch))
}

// BuildManifest hashes files under root. With paths nil every regular file
// is included; otherwise only the listed paths, and those that do not exist
// are left out of the manifest.
func BuildManifest(ctx context.Context, root string, paths []string, workers int) (Manifest, error) {
	if paths == nil {
		var err error
		if paths, err = walk(ctx, root); err != nil {
			return nil, err
		}
	}
	if workers <= 0 {
		workers = 4
	}

	tasks := make(chan string, workers*2)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		m        = make(Manifest, len(paths))
		firstErr error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range tasks {
				e, err := hashFile(filepath.Join(root, filepath.FromSlash(rel)))
				mu.Lock()
				switch {
				case err == nil:
					m[rel] = e
				case os.IsNotExist(err):
				case firstErr == nil:
					firstErr = fmt.Errorf("%s: %w", rel, err)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, p := range paths {
		select {
		case <-ctx.Done():
			break feed
		case tasks <- p:
		}
	}
	close(tasks)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m, firstErr
}

func walk(ctx context.Context, root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, nil
}

func hashFile(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	h := xxhash.New()
	buf := make([]byte, 32*1024)
	n, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return Entry{}, fmt.Errorf("hash: %w", err)
	}
	return Entry{Size: n, Digest: h.Sum64()}, nil
}
