//go:build !linux && !darwin

package platform

import "errors"

// FreeSpace is not implemented on this platform.
func FreeSpace(_ string) (int64, error) {
	return 0, errors.ErrUnsupported
}

// IsMountPoint cannot be determined on this platform; every directory is
// treated as a mount point.
func IsMountPoint(_ string) (bool, error) {
	return true, nil
}
