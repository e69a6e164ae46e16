package schema

import "strings"

// IgnoreSet holds table names that must be left out of every output
type IgnoreSet map[string]struct{}

// NewIgnoreSet builds an IgnoreSet from a list of table names.
// Blank entries are skipped.
func NewIgnoreSet(names []string) IgnoreSet {
	set := make(IgnoreSet, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Contains reports whether the table is ignored. A nil set ignores nothing.
func (s IgnoreSet) Contains(table string) bool {
	_, ok := s[table]
	return ok
}
