package config

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/zeebo/blake3"
)

// Config represents the optional ferry configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Volumes  VolumesConfig  `toml:"volumes"`
	Eject    EjectConfig    `toml:"eject"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults. Nil means "not set".
type DefaultsConfig struct {
	Budget       *string   `toml:"budget"`
	Retries      *int      `toml:"retries"`
	RetryDelay   *Duration `toml:"retry_delay"`
	MountTimeout *Duration `toml:"mount_timeout"`
	Ledger       *string   `toml:"ledger"`
	BWLimit      *string   `toml:"bwlimit"`
	Verify       *bool     `toml:"verify"`
	StateDir     *string   `toml:"state_dir"`
}

// VolumesConfig describes where removable volumes appear and how they are
// named to the operator.
type VolumesConfig struct {
	MediaRoot         *string `toml:"media_root"`
	SourceLabel       *string `toml:"source_label"`
	DestLabel         *string `toml:"dest_label"`
	SourceDir         *string `toml:"source_dir"`
	DestDir           *string `toml:"dest_dir"`
	RequireMountPoint *bool   `toml:"require_mount_point"`
}

// EjectConfig lists the commands run to release a volume. Each command is an
// argv; the placeholders {device} and {path} are substituted.
type EjectConfig struct {
	Commands [][]string `toml:"commands"`
}

// ThemeConfig holds optional colour overrides for the status tags.
type ThemeConfig struct {
	Info    *string `toml:"info"`
	Success *string `toml:"success"`
	Warn    *string `toml:"warn"`
	Error   *string `toml:"error"`
}

// Duration is a time.Duration that decodes from strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ferry", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// StateHome returns $XDG_STATE_HOME/ferry, falling back to ~/.local/state/ferry.
func StateHome() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "ferry")
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "ferry")
}

// DefaultStateDir returns the per-job state directory for a source/destination
// label pair: $XDG_STATE_HOME/ferry/<job-id>.
func DefaultStateDir(srcLabel, dstLabel string) string {
	return filepath.Join(StateHome(), JobID(srcLabel, dstLabel))
}

// JobID computes a deterministic job ID from the source and destination labels.
func JobID(srcLabel, dstLabel string) string {
	h := blake3.New()
	h.Write([]byte(srcLabel)) //nolint:errcheck // hash writes never fail
	h.Write([]byte{0})        //nolint:errcheck // hash writes never fail
	h.Write([]byte(dstLabel)) //nolint:errcheck // hash writes never fail
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

// DefaultMediaRoot guesses the directory under which the desktop automounter
// creates mount points for removable volumes.
func DefaultMediaRoot() string {
	if runtime.GOOS == "darwin" {
		return "/Volumes"
	}
	user := os.Getenv("USER")
	if user != "" {
		for _, base := range []string{"/run/media", "/media"} {
			p := filepath.Join(base, user)
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				return p
			}
		}
		return filepath.Join("/media", user)
	}
	return "/media"
}

// DefaultEjectCommands are used when the config file does not list any.
func DefaultEjectCommands() [][]string {
	if runtime.GOOS == "darwin" {
		return [][]string{{"diskutil", "eject", "{path}"}}
	}
	return [][]string{
		{"udisksctl", "unmount", "--no-user-interaction", "--block-device", "{device}"},
		{"udisksctl", "power-off", "--no-user-interaction", "--block-device", "{device}"},
	}
}
