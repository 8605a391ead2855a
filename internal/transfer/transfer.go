// Package transfer copies files between directory trees on the local
// filesystem. Each file is written to a temporary name beside its target
// and renamed into place, so a copy interrupted at any point leaves either
// the old file or the complete new one.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/platform"
	"github.com/bamsammich/ferry/internal/stats"
)

const tmpSuffix = ".ferry-tmp"

// tmpName matches the names tmpPath produces: .<name>.<8 hex>.ferry-tmp.
var tmpName = regexp.MustCompile(`^\..+\.[0-9a-f]{8}\.ferry-tmp$`)

// ErrNotRegular is returned when a requested path is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

// Options controls how files are written.
type Options struct {
	// PreserveAttributes copies mode, timestamps and (best effort) owner.
	PreserveAttributes bool
	// ShowProgress emits a FileCopied event per file.
	ShowProgress bool
}

// Request describes one copy. Paths are slash-separated and relative to
// SrcRoot; a nil Paths copies every regular file under SrcRoot.
type Request struct {
	SrcRoot string
	DstRoot string
	Paths   []string
	Options Options
}

// Engine copies a set of files from one root to another.
type Engine interface {
	Copy(ctx context.Context, req Request) error
}

// Config configures a Local engine.
type Config struct {
	// BWLimit caps throughput in bytes per second; 0 means unlimited.
	BWLimit int64
	Events  chan<- event.Event
	Stats   *stats.Collector
}

// Local copies between local directories.
type Local struct {
	limiter *rate.Limiter
	events  chan<- event.Event
	stats   *stats.Collector
}

// NewLocal returns a Local engine.
func NewLocal(cfg Config) *Local {
	l := &Local{events: cfg.Events, stats: cfg.Stats}
	if cfg.BWLimit > 0 {
		l.limiter = NewBWLimiter(cfg.BWLimit)
	}
	if l.stats == nil {
		l.stats = stats.NewCollector()
	}
	return l
}

// Copy copies the requested files, stopping at the first failure.
func (l *Local) Copy(ctx context.Context, req Request) error {
	paths := req.Paths
	if paths == nil {
		var err error
		paths, err = listTree(req.SrcRoot)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(req.DstRoot, 0o755); err != nil {
		return fmt.Errorf("create destination %s: %w", req.DstRoot, err)
	}

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := l.copyOne(ctx, req, rel)
		if err != nil {
			l.stats.AddFilesFailed(1)
			event.Emit(l.events, event.Event{Type: event.FileFailed, Path: rel, Error: err})
			return err
		}
		l.stats.AddFilesCopied(1)
		l.stats.AddBytesCopied(n)
		slog.Debug("copied", "path", rel, "bytes", n)
		if req.Options.ShowProgress {
			event.Emit(l.events, event.Event{Type: event.FileCopied, Path: rel, Size: n})
		}
	}
	return nil
}

func (l *Local) copyOne(ctx context.Context, req Request, rel string) (int64, error) {
	srcPath := filepath.Join(req.SrcRoot, filepath.FromSlash(rel))
	dstPath := filepath.Join(req.DstRoot, filepath.FromSlash(rel))

	info, err := os.Lstat(srcPath)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", rel, ErrNotRegular)
	}

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s%s", filepath.Base(dstPath), uuid.New().String()[:8], tmpSuffix))
	defer os.Remove(tmpPath) //nolint:errcheck // no-op once renamed

	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", rel, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create tmp for %s: %w", rel, err)
	}

	n, err := l.copyData(ctx, dst, src, info.Size())
	if err != nil {
		dst.Close()
		return n, fmt.Errorf("copy %s: %w", rel, err)
	}

	mode := os.FileMode(0o644)
	if req.Options.PreserveAttributes {
		mode = info.Mode().Perm()
		platform.ChownLike(dst, info)
	}
	if err := dst.Chmod(mode); err != nil {
		dst.Close()
		return n, fmt.Errorf("chmod %s: %w", rel, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return n, fmt.Errorf("sync %s: %w", rel, err)
	}
	if err := dst.Close(); err != nil {
		return n, fmt.Errorf("close tmp for %s: %w", rel, err)
	}

	if req.Options.PreserveAttributes {
		if err := platform.SetTimes(tmpPath, platform.AccessTime(info), info.ModTime()); err != nil {
			return n, fmt.Errorf("set times %s: %w", rel, err)
		}
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return n, fmt.Errorf("rename into place %s: %w", rel, err)
	}
	return n, nil
}

func (l *Local) copyData(ctx context.Context, dst, src *os.File, size int64) (int64, error) {
	if l.limiter != nil {
		return platform.CopyStream(dst, newRateLimitedReader(ctx, src, l.limiter))
	}
	res, err := platform.CopyFile(dst, src, size)
	return res.BytesWritten, err
}

// listTree returns every regular file under root, slash-separated and
// sorted. Leftover temp files from an interrupted copy are skipped; other
// files that merely end in .ferry-tmp are listed.
func listTree(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if tmpName.MatchString(d.Name()) {
			return nil
		}
		if !d.Type().IsRegular() {
			return fmt.Errorf("%s: %w", rel, ErrNotRegular)
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	return out, nil
}
