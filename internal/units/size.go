// Package units parses and formats the byte quantities used on the command
// line and in the config file (chunk budget, bandwidth limit).
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var suffixes = map[string]int64{
	"B": 1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
}

// ParseSize parses a human-readable size string into bytes.
// Accepts 100, 100B, 100K, 1.5G, 700M and the two-letter forms KB/MB/GB/TB and
// KiB/MiB/GiB/TiB, case-insensitive. All multipliers are powers of 1024.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	upper := strings.ToUpper(s)
	upper = strings.TrimSuffix(upper, "IB")
	if len(upper) > 1 && strings.HasSuffix(upper, "B") {
		if _, ok := suffixes[upper[len(upper)-2:len(upper)-1]]; ok {
			upper = upper[:len(upper)-1]
		}
	}

	multiplier := int64(1)
	numStr := upper
	if m, ok := suffixes[upper[len(upper)-1:]]; ok {
		multiplier = m
		numStr = upper[:len(upper)-1]
	}
	numStr = strings.TrimSpace(numStr)

	if numStr == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(numStr, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size: %q", s)
		}
		if n > math.MaxInt64/multiplier {
			return 0, fmt.Errorf("size too large: %q", s)
		}
		return n * multiplier, nil
	}

	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil || f < 0 || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	v := f * float64(multiplier)
	if v >= math.MaxInt64 {
		return 0, fmt.Errorf("size too large: %q", s)
	}
	return int64(v), nil
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
