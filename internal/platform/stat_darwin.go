//go:build darwin

package platform

import (
	"os"
	"syscall"
	"time"
)

// AccessTime returns the access time recorded in info, or its modification
// time when the platform stat is unavailable.
func AccessTime(info os.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec)
}
