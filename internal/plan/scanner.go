package plan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
)

// Matcher decides whether a path relative to the source root is planned.
// It is implemented by *filter.Rules.
type Matcher interface {
	Keep(relPath string, isDir bool) bool
}

// ScannerConfig controls scanner behavior.
type ScannerConfig struct {
	Root    string
	Workers int
	// Filter skips files and whole directories. Nil keeps everything.
	Filter Matcher
}

// Scanner traverses a directory tree in parallel and collects every regular
// file with its size. Symlinks, devices, sockets and pipes are skipped.
type Scanner struct {
	cfg ScannerConfig

	mu    sync.Mutex
	files []FileEntry
	err   error
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 4)
	}
	return &Scanner{cfg: cfg}
}

// Scan walks the tree and returns its regular files sorted by path. Any
// error reading the tree aborts the scan; a partial listing is never
// returned.
func (s *Scanner) Scan(ctx context.Context) ([]FileEntry, error) {
	info, err := os.Stat(s.cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", s.cfg.Root)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workQueue := make(chan string, s.cfg.Workers*4)
	var outstanding sync.WaitGroup // directories queued but not yet processed

	enqueue := func(dir string) {
		outstanding.Add(1)
		select {
		case workQueue <- dir:
		default:
			// Queue full: hand off so a worker never blocks on its own queue.
			go func() { workQueue <- dir }()
		}
	}

	var workerWg sync.WaitGroup
	for range s.cfg.Workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for dirPath := range workQueue {
				if ctx.Err() == nil {
					if err := s.scanDir(dirPath, enqueue); err != nil {
						s.fail(err)
						cancel()
					}
				}
				outstanding.Done()
			}
		}()
	}

	enqueue(s.cfg.Root)
	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()

	if s.err != nil {
		return nil, s.err
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(s.files, func(a, b FileEntry) int { return strings.Compare(a.Path, b.Path) })
	return s.files, nil
}

func (s *Scanner) scanDir(dirPath string, enqueue func(string)) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("readdir %s: %w", dirPath, err)
	}

	var found []FileEntry
	for _, entry := range entries {
		entryPath := filepath.Join(dirPath, entry.Name())
		mode := entry.Type()
		if !mode.IsDir() && !mode.IsRegular() {
			continue // symlinks and special files are not transferred
		}

		rel, err := filepath.Rel(s.cfg.Root, entryPath)
		if err != nil {
			return fmt.Errorf("rel path for %s: %w", entryPath, err)
		}
		rel = filepath.ToSlash(rel)
		if s.cfg.Filter != nil && !s.cfg.Filter.Keep(rel, mode.IsDir()) {
			continue
		}

		if mode.IsDir() {
			enqueue(entryPath)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("lstat %s: %w", entryPath, err)
		}
		found = append(found, FileEntry{Path: rel, Size: info.Size()})
	}

	if len(found) > 0 {
		s.mu.Lock()
		s.files = append(s.files, found...)
		s.mu.Unlock()
	}
	return nil
}

func (s *Scanner) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
