// Package fsop wraps the handful of filesystem operations the task store is
// allowed to use. Every mutation is a single atomic rename (or a
// write-temp-then-rename), so a crash at any point leaves either the old
// state or the new state on disk, never a partial one.
package fsop

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a source path does not exist. For a rename
// this usually means another process moved the file first.
var ErrNotFound = errors.New("not found")

// EnsureDir creates dir and any missing parents. Calling it on an existing
// directory is a no-op.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// WriteFileAtomic writes data to path via a dot-prefixed temp file in the
// same directory followed by a rename. A reader can never observe a
// partially written file at path, and the temp name is invisible to
// ListFiles.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Rename moves src to dst in one atomic operation. A missing src maps to
// ErrNotFound so callers can tell a lost race from a real failure. Both
// paths must reside on the same filesystem for the atomicity guarantee to
// hold.
func Rename(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", src, ErrNotFound)
		}
		return fmt.Errorf("failed to rename %s: %w", src, err)
	}
	return nil
}

// ListFiles returns the names of regular files directly inside dir, sorted
// lexicographically. Subdirectories and dotfiles (including in-flight temp
// files) are skipped. A missing directory yields an empty listing.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
