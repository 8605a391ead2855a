package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
)

func TestPlainPresenterFileCopiedVerbose(t *testing.T) {
	var out bytes.Buffer
	p := &plainPresenter{w: &out, stats: stats.NewCollector(), verbose: true}

	events := make(chan Event, 10)
	events <- Event{Type: event.FileCopied, Path: "dir/file.txt", Size: 1024}
	events <- Event{Type: event.FileCopied, Path: "dir/big.bin", Size: 1024 * 1024 * 100}
	close(events)

	assert.NoError(t, p.Run(events))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "dir/file.txt")
	assert.Contains(t, lines[1], "dir/big.bin")
}

func TestPlainPresenterFileCopiedQuietByDefault(t *testing.T) {
	var out bytes.Buffer
	p := &plainPresenter{w: &out, stats: stats.NewCollector()}

	events := make(chan Event, 2)
	events <- Event{Type: event.FileCopied, Path: "a.txt", Size: 1}
	events <- Event{Type: event.ChunkCompleted, Chunk: 0, Chunks: 1}
	close(events)

	assert.NoError(t, p.Run(events))
	assert.Empty(t, out.String())
}

func TestPlainPresenterFileFailed(t *testing.T) {
	var out bytes.Buffer
	p := &plainPresenter{w: &out, stats: stats.NewCollector()}

	events := make(chan Event, 5)
	events <- Event{Type: event.FileFailed, Path: "fail.txt", Size: 512, Error: assert.AnError}
	close(events)

	assert.NoError(t, p.Run(events))
	assert.Contains(t, out.String(), "fail.txt")
	assert.Contains(t, out.String(), assert.AnError.Error())
}

func TestPlainPresenterSummary(t *testing.T) {
	collector := stats.NewCollector()
	collector.SetChunksTotal(4)
	collector.AddChunksSkipped(1)
	collector.AddChunksCompleted(3)
	collector.AddFilesCopied(100)
	collector.AddBytesCopied(1024 * 1024)

	p := &plainPresenter{stats: collector}
	s := p.Summary()
	assert.Contains(t, s, "done ✓")
	assert.Contains(t, s, "chunks 4/4 (1 resumed)")
	assert.Contains(t, s, "files 100")
	assert.Contains(t, s, "errors 0")
	assert.NotContains(t, s, "retries")
}

func TestCompletionSummaryIncomplete(t *testing.T) {
	s := CompletionSummary(stats.Snapshot{ChunksTotal: 5, ChunksCompleted: 2, Retries: 3})
	assert.Contains(t, s, "done ✗")
	assert.Contains(t, s, "chunks 2/5")
	assert.Contains(t, s, "retries 3")
}

func TestCompletionSummaryVerified(t *testing.T) {
	s := CompletionSummary(stats.Snapshot{ChunksTotal: 1, ChunksCompleted: 1, FilesVerified: 1200, FilesVerifyFailed: 2})
	assert.Contains(t, s, "verified 1,200")
	assert.Contains(t, s, "errors 2")
	assert.Contains(t, s, "done ✗")
}

func TestQuietPresenter(t *testing.T) {
	p := NewPresenter(Config{Quiet: true})
	events := make(chan Event, 2)
	events <- Event{Type: event.FileCopied, Path: "a"}
	close(events)
	assert.NoError(t, p.Run(events))
	assert.Empty(t, p.Summary())
}
