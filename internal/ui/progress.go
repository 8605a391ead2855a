package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// progressPresenter keeps a one-line status at the bottom of the terminal:
//
//	chunk 3/12  source  ▪▪▪▪□□□□□□  412/1,024 files  1.2 GiB  38.1 MiB/s  eta 2h 10m 00s
//
// Log lines written through the Console scroll above it.
type progressPresenter struct {
	console  *Console
	stats    StatsSource
	verbose  bool
	width    int
	tick     time.Duration
	renderer *lipgloss.Renderer

	chunk      int
	chunks     int
	phase      string
	chunkFiles int
	filesDone  int
	chunkBytes int64
	eta        time.Duration
	verifying  bool
}

func (p *progressPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	defer p.console.ClearStatus()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
			p.render()
		case <-ticker.C:
			p.stats.Tick()
			p.render()
		}
	}
}

func (p *progressPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case PlanLoaded:
		p.chunks = ev.Chunks
	case ChunkStarted:
		p.chunk = ev.Chunk
		p.chunkFiles = ev.Files
		p.chunkBytes = ev.Size
		p.filesDone = 0
		p.phase = ""
	case PhaseStarted:
		p.phase = ev.Phase
		p.filesDone = 0
	case PhaseRetry:
		p.phase = fmt.Sprintf("%s (retry %d)", ev.Phase, ev.Attempt)
		p.filesDone = 0
	case ChunkCompleted:
		p.eta = ev.ETA
		p.phase = "done"
	case FileCopied:
		p.filesDone++
		if p.verbose {
			fmt.Fprintf(p.console, "%s  %s\n", ev.Path, FormatBytes(ev.Size))
		}
	case FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.console, "%s  %s\n", ev.Path, errMsg)
	case VerifyStarted:
		p.verifying = true
	case VerifyOK:
		p.verifying = false
	}
}

func (p *progressPresenter) render() {
	p.console.SetStatus(p.statusLine())
}

func (p *progressPresenter) statusLine() string {
	if p.verifying {
		return "verifying..."
	}
	if p.chunks == 0 {
		return ""
	}

	pct := 0.0
	if p.chunkFiles > 0 {
		pct = float64(p.filesDone) / float64(p.chunkFiles)
	}
	filled, empty := progressStyles(p.renderer)
	bar := ProgressBar(pct, 10)
	n := int(pct * 10)
	runes := []rune(bar)
	bar = filled.Render(string(runes[:n])) + empty.Render(string(runes[n:]))

	parts := []string{
		"chunk " + ChunkLabel(p.chunk, p.chunks),
	}
	if p.phase != "" {
		parts = append(parts, p.phase)
	}
	parts = append(parts,
		bar,
		fmt.Sprintf("%s/%s files", FormatCount(int64(p.filesDone)), FormatCount(int64(p.chunkFiles))),
		FormatBytes(p.chunkBytes),
		FormatRate(p.stats.RollingSpeed(5)),
		"eta "+FormatETA(p.eta),
	)
	line := strings.Join(parts, "  ")
	if lipgloss.Width(line) >= p.width {
		line = ansi.Truncate(line, p.width-1, "")
	}
	return line
}

func (p *progressPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
