package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/ledger"
	"github.com/bamsammich/ferry/internal/ui"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved plan and which chunks are done",
		Long: `Show the saved plan and which chunks are done. No volume is needed;
only the state directory is read.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
			}
			if err := applyConfigDefaults(cmd, cfg, opts); err != nil {
				return err
			}
			stateDir := opts.stateDir
			if stateDir == "" {
				stateDir = config.DefaultStateDir(labelOr(opts.sourceLabel, "source"), labelOr(opts.destLabel, "destination"))
			}
			return printStatus(os.Stdout, opts.ledgerKind, stateDir)
		},
	}
}

func printStatus(w io.Writer, kind, stateDir string) error {
	if _, err := os.Stat(stateDir); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "no plan in %s\n", stateDir)
		return nil
	}

	led, err := ledger.Open(kind, stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open progress: %v\n", err)
		return &exitError{code: 1}
	}
	defer led.Close()

	chunks, err := led.ListChunks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read progress: %v\n", err)
		return &exitError{code: 1}
	}
	if len(chunks) == 0 {
		fmt.Fprintf(w, "no plan in %s\n", stateDir)
		return nil
	}

	var done, files int
	var bytes, doneBytes int64
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("chunk", "files", "size", "status")
	for _, c := range chunks {
		status := "pending"
		if c.Done {
			status = "done"
			done++
			doneBytes += c.Size
		}
		files += c.Files
		bytes += c.Size
		t.Row(ui.ChunkLabel(c.Index, len(chunks)), strconv.Itoa(c.Files), ui.FormatBytes(c.Size), status)
	}

	fmt.Fprintf(w, "state    %s\n", stateDir)
	fmt.Fprintf(w, "chunks   %d/%d done\n", done, len(chunks))
	fmt.Fprintf(w, "files    %s\n", ui.FormatCount(int64(files)))
	fmt.Fprintf(w, "size     %s of %s\n", ui.FormatBytes(doneBytes), ui.FormatBytes(bytes))
	fmt.Fprintln(w, t.Render())

	issues, err := led.Check()
	if err != nil {
		return err
	}
	for _, i := range issues {
		fmt.Fprintf(w, "warning: %s\n", i)
	}
	return nil
}
