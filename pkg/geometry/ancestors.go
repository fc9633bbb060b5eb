package geometry

import "path/filepath"

// Ancestors walks upward from dir and returns at most depth ancestor
// directories, ordered furthest ancestor first, immediate parent last.
// The walk stops at the filesystem root, where Dir(p) == p, so the realized
// count may be smaller than depth. Walking past the root is not an error.
func Ancestors(dir string, depth int) []string {
	if depth <= 0 {
		return nil
	}
	current := filepath.Clean(dir)
	var chain []string
	for len(chain) < depth {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		chain = append(chain, parent)
		current = parent
	}
	// Reverse: collected immediate-parent first, callers want furthest first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
