// Package filex holds small filesystem helpers shared by the account and the
// staging code.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates dir (and parents) with 0o700 permissions and returns its
// absolute, cleaned path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// Canonical resolves dir to an absolute path with symlinks evaluated where
// possible. A path that does not exist yet is only made absolute.
func Canonical(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// Within reports whether path equals root or lies below it. Both are
// canonicalized first.
func Within(path, root string) (bool, error) {
	p, err := Canonical(path)
	if err != nil {
		return false, err
	}
	r, err := Canonical(root)
	if err != nil {
		return false, err
	}
	if p == r {
		return true, nil
	}
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return false, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}
