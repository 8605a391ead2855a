//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyFile copies the whole of src into dst, trying copy_file_range first
// and falling through to read/write on unsupported or cross-device errors.
// Both files must be positioned at offset 0.
func CopyFile(dst, src *os.File, size int64) (CopyResult, error) {
	preallocate(dst, size)

	result, err := copyFileRange(dst, src, size)
	if err == nil {
		return result, nil
	}
	if !isFallbackErr(err) || result.BytesWritten > 0 {
		return result, err
	}

	return copyReadWrite(dst, src)
}

//nolint:gosec // G115: fd values are small non-negative integers
func copyFileRange(dst, src *os.File, size int64) (CopyResult, error) {
	var total int64
	remaining := size
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(src.Fd()), nil, int(dst.Fd()), nil, int(min(remaining, 1<<30)), 0)
		if err != nil {
			return CopyResult{BytesWritten: total, Method: CopyFileRange}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		total += int64(n)
	}

	// The file may have grown since it was planned; pick up the tail.
	if remaining <= 0 {
		tail, err := copyReadWrite(dst, src)
		total += tail.BytesWritten
		if err != nil {
			return CopyResult{BytesWritten: total, Method: CopyFileRange}, err
		}
	}

	return CopyResult{BytesWritten: total, Method: CopyFileRange}, nil
}
