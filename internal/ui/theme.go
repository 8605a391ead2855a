package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/ferry/internal/config"
)

// Catppuccin Mocha palette, overridable from the config file.
var (
	ColorBlue   = lipgloss.Color("#89b4fa")
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorMuted  = lipgloss.Color("#5a6278")
)

// ApplyTheme overrides palette colours with those set in cfg.
func ApplyTheme(cfg config.ThemeConfig) {
	set := func(dst *lipgloss.Color, v *string) {
		if v != nil && *v != "" {
			*dst = lipgloss.Color(*v)
		}
	}
	set(&ColorBlue, cfg.Info)
	set(&ColorGreen, cfg.Success)
	set(&ColorYellow, cfg.Warn)
	set(&ColorRed, cfg.Error)
}

func tagStyles(r *lipgloss.Renderer) map[string]lipgloss.Style {
	return map[string]lipgloss.Style{
		"debug": r.NewStyle().Foreground(ColorMuted),
		"info":  r.NewStyle().Foreground(ColorBlue),
		"ok":    r.NewStyle().Bold(true).Foreground(ColorGreen),
		"warn":  r.NewStyle().Bold(true).Foreground(ColorYellow),
		"error": r.NewStyle().Bold(true).Foreground(ColorRed),
	}
}

// progressStyles returns the bar styles; a nil renderer yields unstyled ones.
func progressStyles(r *lipgloss.Renderer) (filled, empty lipgloss.Style) {
	if r == nil {
		r = lipgloss.NewRenderer(io.Discard)
	}
	return r.NewStyle().Foreground(ColorGreen), r.NewStyle().Foreground(ColorMuted)
}
