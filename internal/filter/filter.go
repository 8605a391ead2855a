// Package filter decides which source paths are planned for transfer using
// ordered rsync-style include and exclude rules.
package filter

import "fmt"

// Action is what a matching rule does to a path.
type Action int

const (
	Exclude Action = iota
	Include
)

func (a Action) String() string {
	if a == Include {
		return "include"
	}
	return "exclude"
}

type rule struct {
	glob   *glob
	action Action
}

// Rules is an ordered rule list. The first rule matching a path decides;
// paths no rule matches are kept.
type Rules struct {
	rules []rule
}

// New returns an empty rule list.
func New() *Rules {
	return &Rules{}
}

// Add appends a rule.
func (r *Rules) Add(action Action, pattern string) error {
	g, err := compileGlob(pattern)
	if err != nil {
		return fmt.Errorf("%s pattern %q: %w", action, pattern, err)
	}
	r.rules = append(r.rules, rule{glob: g, action: action})
	return nil
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Keep reports whether relPath (slash-separated, relative to the source
// root) is transferred. An excluded directory is not descended into.
// A nil Rules keeps everything.
func (r *Rules) Keep(relPath string, isDir bool) bool {
	if r == nil {
		return true
	}
	for _, ru := range r.rules {
		if ru.glob.match(relPath, isDir) {
			return ru.action == Include
		}
	}
	return true
}

// Append adds every rule of other after r's own.
func (r *Rules) Append(other *Rules) {
	if other == nil {
		return
	}
	r.rules = append(r.rules, other.rules...)
}
