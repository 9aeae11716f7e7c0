package model

import "sort"

// FileSet maps repository-relative paths to file content. It is the unit
// the submission workflow stages into a single commit.
type FileSet map[string][]byte

// Paths returns the file paths in sorted order, so iteration over a set
// is deterministic.
func (fs FileSet) Paths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	return paths
}

// Equal reports whether two sets contain identical paths and bytes.
func (fs FileSet) Equal(other FileSet) bool {
	if len(fs) != len(other) {
		return false
	}

	for p, content := range fs {
		got, ok := other[p]
		if !ok || string(got) != string(content) {
			return false
		}
	}

	return true
}
