package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bamsammich/ferry/internal/units"
)

// FormatBytes is units.FormatBytes, re-exported for the presenters.
func FormatBytes(b int64) string {
	return units.FormatBytes(b)
}

// FormatRate renders a throughput in the same binary units as FormatBytes,
// so "1.5 MiB" of a chunk and "1.5 MiB/s" read alike on one line.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec < 1 {
		return "0 B/s"
	}
	return units.FormatBytes(int64(bytesPerSec)) + "/s"
}

// FormatCount groups thousands: 48917 becomes "48,917".
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatDuration renders elapsed time as "1h 02m 03s", "3m 17s" or "42s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, m, s := int(d/time.Hour), int(d/time.Minute)%60, int(d/time.Second)%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatETA is FormatDuration with "--" for an unknown estimate.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return FormatDuration(d)
}

// ChunkLabel renders a 0-based chunk index as a 1-based "n/total" label.
func ChunkLabel(index, total int) string {
	return fmt.Sprintf("%d/%d", index+1, total)
}

// ProgressBar draws pct (clamped to [0,1]) as width cells of ▪ and □.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(min(max(pct, 0), 1) * float64(width))
	return strings.Repeat("▪", filled) + strings.Repeat("□", width-filled)
}
