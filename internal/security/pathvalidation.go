// Package security holds filesystem checks for files the bridge reads from
// operator-supplied directories.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDir is returned when a path resolves outside its directory.
var ErrOutsideDir = errors.New("path escapes directory")

// ValidatePathWithinDirectory checks that path, after resolving symlinks,
// stays inside dir. Both must exist.
func ValidatePathWithinDirectory(path, dir string) error {
	canonicalDir, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory %s: %w", dir, err)
	}
	canonicalPath, err := canonical(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutsideDir, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s resolves to %s", ErrOutsideDir, path, canonicalPath)
	}
	return nil
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
