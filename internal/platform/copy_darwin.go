//go:build darwin

package platform

import "os"

// CopyFile copies the whole of src into dst with read/write. clonefile(2)
// needs a destination path that does not exist yet, which does not fit the
// engine's temp-file-then-rename discipline.
func CopyFile(dst, src *os.File, size int64) (CopyResult, error) {
	preallocate(dst, size)
	return copyReadWrite(dst, src)
}
