package volume

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bamsammich/ferry/internal/command"
)

// Ejector unmounts and powers off a volume by running a list of commands.
type Ejector struct {
	Runner     command.Runner
	Commands   [][]string
	MountsFile string
}

// Eject runs each command in order and stops at the first failure.
// Commands referencing {device} are skipped when the device is unknown.
func (e *Ejector) Eject(ctx context.Context, v Volume) error {
	device := v.Device
	if device == "" && e.MountsFile != "" {
		if d, err := DeviceFor(e.MountsFile, v.Path); err == nil {
			device = d
		} else {
			slog.Debug("device lookup failed", "path", v.Path, "error", err)
		}
	}

	vars := map[string]string{"device": device, "path": v.Path}
	for _, argv := range e.Commands {
		if len(argv) == 0 {
			continue
		}
		if device == "" && slices.ContainsFunc(argv, func(a string) bool {
			return strings.Contains(a, "{device}")
		}) {
			return fmt.Errorf("eject %s: block device unknown", v.Path)
		}
		args := command.Expand(argv, vars)
		slog.Debug("eject", "cmd", strings.Join(args, " "))
		if _, err := e.Runner.Run(ctx, args[0], args[1:]...); err != nil {
			return fmt.Errorf("eject %s: %w", v.Path, err)
		}
	}
	return nil
}
