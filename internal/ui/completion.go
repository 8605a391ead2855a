package ui

import (
	"fmt"

	"github.com/bamsammich/ferry/internal/stats"
)

// CompletionSummary builds the final summary line from a snapshot.
// Format: done ✓  chunks 12/12 (4 resumed)  files 48,917  size 2.1 GiB  avg 41.0 MiB/s  time 3h 17m 02s  retries 1  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}

	errors := snap.FilesFailed + snap.FilesVerifyFailed
	done := snap.ChunksCompleted + snap.ChunksSkipped

	icon := "✓"
	if errors > 0 || done < snap.ChunksTotal {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  chunks %d/%d", icon, done, snap.ChunksTotal)
	if snap.ChunksSkipped > 0 {
		base += fmt.Sprintf(" (%d resumed)", snap.ChunksSkipped)
	}
	base += fmt.Sprintf("  files %s  size %s  avg %s  time %s",
		FormatCount(snap.FilesCopied),
		FormatBytes(snap.BytesCopied),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.FilesVerified > 0 || snap.FilesVerifyFailed > 0 {
		base += fmt.Sprintf("  verified %s", FormatCount(snap.FilesVerified))
	}
	if snap.Retries > 0 {
		base += fmt.Sprintf("  retries %d", snap.Retries)
	}

	return base + fmt.Sprintf("  errors %d", errors)
}
