//go:build !linux && !darwin

package platform

import "os"

// CopyFile falls back to read/write on unsupported platforms.
func CopyFile(dst, src *os.File, size int64) (CopyResult, error) {
	preallocate(dst, size)
	return copyReadWrite(dst, src)
}
