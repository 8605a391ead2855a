package volume

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMountsFile is the kernel mount table of the current process.
const DefaultMountsFile = "/proc/self/mounts"

// MountEntry is one line of a mounts file.
type MountEntry struct {
	Device     string
	MountPoint string
	FSType     string
}

// ParseMounts reads a mounts file in fstab format.
func ParseMounts(r io.Reader) ([]MountEntry, error) {
	var out []MountEntry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		out = append(out, MountEntry{
			Device:     unescapeMount(fields[0]),
			MountPoint: unescapeMount(fields[1]),
			FSType:     fields[2],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mounts: %w", err)
	}
	return out, nil
}

// unescapeMount decodes the octal escapes (\040 for space) used in mount
// tables.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// DeviceFor returns the device mounted at path according to mountsFile.
// The last matching entry wins since later mounts shadow earlier ones.
func DeviceFor(mountsFile, path string) (string, error) {
	f, err := os.Open(mountsFile)
	if err != nil {
		return "", err
	}
	defer f.Close()

	entries, err := ParseMounts(f)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(path)
	device := ""
	for _, e := range entries {
		if filepath.Clean(e.MountPoint) == clean {
			device = e.Device
		}
	}
	if device == "" {
		return "", errors.New("no mount entry for " + clean)
	}
	return device, nil
}
