// Package workspace keeps file system access inside a root directory. It
// guards the notes folder read during extraction and the upload area the
// HTTP API writes to.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that resolve outside the guarded root.
var ErrOutsideRoot = errors.New("path is outside the workspace")

// Guard checks paths against one root directory. Symbolic links are
// followed before the check, so a link inside the root that points out of
// it is rejected.
type Guard struct {
	root string // absolute, symlinks evaluated
}

// NewGuard creates a guard for dir, which must exist.
func NewGuard(dir string) (*Guard, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate workspace directory symlinks: %w", err)
	}
	return &Guard{root: root}, nil
}

// Root returns the resolved root directory.
func (g *Guard) Root() string {
	return g.root
}

// Resolve returns the absolute, symlink-free form of path. Relative paths
// are taken relative to the root. Components that do not exist yet are kept
// as given, which lets callers validate files before creating them.
func (g *Guard) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.root, path)
	}
	return resolveExisting(filepath.Clean(path)), nil
}

// Contains reports whether path resolves to the root or below it.
func (g *Guard) Contains(path string) bool {
	resolved, err := g.Resolve(path)
	if err != nil {
		return false
	}
	return resolved == g.root || strings.HasPrefix(resolved, g.root+string(filepath.Separator))
}

// Validate returns ErrOutsideRoot, wrapped with the path, when path escapes
// the root.
func (g *Guard) Validate(path string) error {
	if !g.Contains(path) {
		return fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}
	return nil
}

// resolveExisting evaluates symlinks on the longest existing prefix of path
// and re-appends the missing tail.
func resolveExisting(path string) string {
	var tail []string
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}
