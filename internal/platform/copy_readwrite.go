package platform

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies src into dst from their current offsets using a
// pooled buffer.
func copyReadWrite(dst, src *os.File) (CopyResult, error) {
	bufp := bufPool.Get().(*[]byte) //nolint:forcetypeassert // pool only holds *[]byte
	defer bufPool.Put(bufp)

	// Hide ReadFrom/WriteTo so io.CopyBuffer really uses our buffer.
	n, err := io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, *bufp)
	return CopyResult{BytesWritten: n, Method: ReadWrite}, err
}

// CopyStream copies r into w with a pooled buffer. Used when the reader is
// wrapped (bandwidth limiting) and kernel offload is not possible.
func CopyStream(w io.Writer, r io.Reader) (int64, error) {
	bufp := bufPool.Get().(*[]byte) //nolint:forcetypeassert // pool only holds *[]byte
	defer bufPool.Put(bufp)
	return io.CopyBuffer(struct{ io.Writer }{w}, struct{ io.Reader }{r}, *bufp)
}

// isFallbackErr returns true if err should trigger a fallback to the next
// copy strategy.
func isFallbackErr(err error) bool {
	for _, target := range []error{
		syscall.ENOSYS, syscall.EXDEV, syscall.EINVAL, syscall.EOPNOTSUPP, syscall.EPERM,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
