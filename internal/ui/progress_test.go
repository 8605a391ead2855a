package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/stats"
)

func newTestProgress(buf *bytes.Buffer, verbose bool) *progressPresenter {
	p := NewPresenter(Config{
		Console: NewConsole(buf, true),
		Stats:   stats.NewCollector(),
		IsTTY:   true,
		Verbose: verbose,
		Width:   200,
	})
	pp, ok := p.(*progressPresenter)
	if !ok {
		panic("expected progress presenter")
	}
	pp.tick = time.Hour
	return pp
}

func TestProgressStatusLine(t *testing.T) {
	var buf bytes.Buffer
	p := newTestProgress(&buf, false)

	p.handleEvent(Event{Type: event.PlanLoaded, Chunks: 12})
	p.handleEvent(Event{Type: event.ChunkStarted, Chunk: 2, Files: 4, Size: 2048})
	p.handleEvent(Event{Type: event.PhaseStarted, Phase: "source", Attempt: 1})
	p.handleEvent(Event{Type: event.FileCopied, Path: "a"})
	p.handleEvent(Event{Type: event.FileCopied, Path: "b"})

	line := p.statusLine()
	assert.Contains(t, line, "chunk 3/12")
	assert.Contains(t, line, "source")
	assert.Contains(t, line, "2/4 files")
	assert.Contains(t, line, "2.0 KiB")
	assert.Contains(t, line, "eta --")
}

func TestProgressRetryResetsFileCount(t *testing.T) {
	var buf bytes.Buffer
	p := newTestProgress(&buf, false)

	p.handleEvent(Event{Type: event.PlanLoaded, Chunks: 2})
	p.handleEvent(Event{Type: event.ChunkStarted, Chunk: 0, Files: 3})
	p.handleEvent(Event{Type: event.FileCopied})
	p.handleEvent(Event{Type: event.PhaseRetry, Phase: "destination", Attempt: 2})

	line := p.statusLine()
	assert.Contains(t, line, "destination (retry 2)")
	assert.Contains(t, line, "0/3 files")
}

func TestProgressVerifying(t *testing.T) {
	var buf bytes.Buffer
	p := newTestProgress(&buf, false)

	p.handleEvent(Event{Type: event.PlanLoaded, Chunks: 1})
	p.handleEvent(Event{Type: event.VerifyStarted})
	assert.Equal(t, "verifying...", p.statusLine())
	p.handleEvent(Event{Type: event.VerifyFailed, Path: "x"})
	assert.Equal(t, "verifying...", p.statusLine())
	p.handleEvent(Event{Type: event.VerifyOK})
	assert.Contains(t, p.statusLine(), "chunk 1/1")
}

func TestProgressRunClearsStatus(t *testing.T) {
	var buf bytes.Buffer
	p := newTestProgress(&buf, true)

	events := make(chan Event, 4)
	events <- Event{Type: event.PlanLoaded, Chunks: 1}
	events <- Event{Type: event.ChunkStarted, Chunk: 0, Files: 1}
	events <- Event{Type: event.FileCopied, Path: "photos/a.jpg", Size: 10}
	close(events)

	require.NoError(t, p.Run(events))

	out := buf.String()
	assert.Contains(t, out, "photos/a.jpg  10 B\n")
	assert.True(t, strings.HasSuffix(out, "\r\033[K"), "status line must be cleared on exit")
}
