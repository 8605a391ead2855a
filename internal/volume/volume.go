// Package volume detects removable volumes appearing under a media root,
// prompts the operator to insert and remove them, and ejects them.
//
// Only one volume is expected to be attached at a time. Detection diffs a
// listing of the media root taken before the operator acts with the listing
// after, and picks the first new entry in name order.
package volume

import (
	"errors"
	"fmt"
	"os"
	"slices"
)

// ErrMountTimeout is returned when no new volume appears within the
// detection timeout.
var ErrMountTimeout = errors.New("timed out waiting for volume to mount")

// Role is the part a volume plays in a transfer.
type Role int

const (
	Source Role = iota + 1
	Destination
)

func (r Role) String() string {
	switch r {
	case Source:
		return "source"
	case Destination:
		return "destination"
	default:
		return "unknown"
	}
}

// Volume is a mounted removable volume.
type Volume struct {
	Name   string // entry name under the media root
	Path   string // mount point
	Root   string // directory transfers read from or write to (Path or a subdirectory)
	Device string // block device, if known
	Role   Role
}

func (v Volume) String() string {
	return fmt.Sprintf("%s volume %s (%s)", v.Role, v.Name, v.Path)
}

// Snapshot is the set of entry names under the media root at one instant.
type Snapshot map[string]struct{}

// Has reports whether name was present.
func (s Snapshot) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the entries in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// TakeSnapshot lists root. A missing root yields an empty snapshot since
// automounters often create it on first mount.
func TakeSnapshot(root string) (Snapshot, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("list media root: %w", err)
	}
	snap := make(Snapshot, len(entries))
	for _, e := range entries {
		snap[e.Name()] = struct{}{}
	}
	return snap, nil
}
