package ignore

import (
	"path/filepath"
	"strings"
)

// EscapesRoot reports whether path, after resolving symlinks, points outside
// root. Used to reject symlinks that would let indexing escape the project
// directory. A resolution error is treated as escaping (fail closed).
func EscapesRoot(root, path string) bool {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return true
	}

	resolvedRoot = filepath.Clean(resolvedRoot)
	resolved = filepath.Clean(resolved)

	if resolved == resolvedRoot {
		return false
	}
	return !strings.HasPrefix(resolved, resolvedRoot+string(filepath.Separator))
}
