//go:build linux || darwin

package platform

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FreeSpace returns the bytes available to an unprivileged user on the
// filesystem holding path.
func FreeSpace(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	//nolint:gosec,unconvert // G115: block counts fit in int64; Bsize type differs per OS
	return int64(st.Bavail) * int64(st.Bsize), nil
}

// IsMountPoint reports whether path is the root of a mounted filesystem,
// i.e. it lives on a different device than its parent directory.
func IsMountPoint(path string) (bool, error) {
	var self, parent unix.Stat_t
	if err := unix.Stat(path, &self); err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := unix.Stat(filepath.Dir(filepath.Clean(path)), &parent); err != nil {
		return false, fmt.Errorf("stat parent of %s: %w", path, err)
	}
	//nolint:unconvert // Dev is int32 on darwin
	return uint64(self.Dev) != uint64(parent.Dev) || self.Ino == parent.Ino, nil
}
