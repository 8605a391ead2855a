package filter

import (
	"regexp"
	"strings"
)

// glob is a compiled rsync-style pattern.
//
//	*.log       any file named *.log at any depth
//	/DCIM       DCIM at the root only
//	sub/*.txt   contains a slash, so anchored at the root
//	cache/      directories only
//	**/x        ** crosses directory boundaries
type glob struct {
	re      *regexp.Regexp
	dirOnly bool
}

func compileGlob(pattern string) (*glob, error) {
	g := &glob{}
	if p, ok := strings.CutSuffix(pattern, "/"); ok {
		g.dirOnly = true
		pattern = p
	}
	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	prefix := "(^|/)"
	if anchored {
		prefix = "^"
	}
	re, err := regexp.Compile(prefix + translate(pattern) + "$")
	if err != nil {
		return nil, err
	}
	g.re = re
	return g, nil
}

func (g *glob) match(relPath string, isDir bool) bool {
	if g.dirOnly && !isDir {
		return false
	}
	return g.re.MatchString(relPath)
}

// translate converts glob syntax to a regular expression body.
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			switch {
			case strings.HasPrefix(pattern[i:], "**/"):
				b.WriteString("(.*/)?")
				i += 2
			case strings.HasPrefix(pattern[i:], "**"):
				b.WriteString(".*")
				i++
			default:
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : end]
			if rest, ok := strings.CutPrefix(class, "!"); ok {
				class = "^" + rest
			}
			b.WriteString("[" + class + "]")
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// classEnd returns the index of the ']' closing the class opened at
// pattern[start], or -1. A ']' right after '[' or '[!' is literal.
func classEnd(pattern string, start int) int {
	j := start + 1
	if j < len(pattern) && pattern[j] == '!' {
		j++
	}
	if j < len(pattern) && pattern[j] == ']' {
		j++
	}
	if k := strings.IndexByte(pattern[j:], ']'); k >= 0 {
		return j + k
	}
	return -1
}
