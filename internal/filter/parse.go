package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile appends the rules in the file at path. See Parse for the format.
func (r *Rules) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()
	return r.Parse(f, path)
}

// Parse appends rules read from in, one per line:
//
//	+ pattern   include
//	- pattern   exclude
//	pattern     exclude
//	# comment
//
// name is used in error messages.
func (r *Rules) Parse(in io.Reader, name string) error {
	sc := bufio.NewScanner(in)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		action := Exclude
		if p, ok := strings.CutPrefix(text, "+ "); ok {
			action, text = Include, strings.TrimSpace(p)
		} else if p, ok := strings.CutPrefix(text, "- "); ok {
			text = strings.TrimSpace(p)
		}
		if err := r.Add(action, text); err != nil {
			return fmt.Errorf("%s line %d: %w", name, line, err)
		}
	}
	return sc.Err()
}
