package ui

import (
	"fmt"
	"io"
)

// plainPresenter writes line-oriented output for pipes and log files.
// Chunk and phase progress already reach the log; per-file lines are only
// written with --verbose.
type plainPresenter struct {
	w       io.Writer
	stats   StatsSource
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	for ev := range events {
		p.handleEvent(ev)
	}
	return nil
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FileCopied:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", ev.Path, FormatBytes(ev.Size))
		}
	case FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  %s\n", ev.Path, errMsg)
	}
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
