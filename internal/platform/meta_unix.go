//go:build linux || darwin

package platform

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// SetTimes sets atime and mtime on path with nanosecond precision.
func SetTimes(path string, atime, mtime time.Time) error {
	times := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, 0); err != nil {
		return fmt.Errorf("utimensat: %w", err)
	}
	return nil
}

// ChownLike copies the owner of info onto f. Failure is ignored since it
// needs privileges the operator usually lacks, and removable filesystems
// such as FAT have no owners at all.
func ChownLike(f *os.File, info os.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	_ = unix.Fchown(int(f.Fd()), int(st.Uid), int(st.Gid)) //nolint:gosec // ids fit in int
}
