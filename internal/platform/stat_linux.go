//go:build linux

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
	return time.Unix(st.Atim.Sec, st.Atim.Nsec)
}
