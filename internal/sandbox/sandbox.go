// Package sandbox confines file writes and removals to a root directory and
// makes writes atomic. The state directory and the cron.d directory are the
// two roots used by a run.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Resolve checks that rel stays inside root once symlinks are followed and
// returns the absolute path.
func Resolve(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	realRoot, err := resolveExisting(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolving root symlinks: %w", err)
	}

	candidate := filepath.Clean(filepath.Join(realRoot, rel))

	// The path may not exist yet, so resolve as much as we can.
	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", rel, err)
	}

	rootPrefix := realRoot + string(filepath.Separator)
	if resolved != realRoot && !strings.HasPrefix(resolved, rootPrefix) {
		return "", fmt.Errorf("path '%s' resolves to '%s' which is outside '%s'", rel, resolved, realRoot)
	}
	return resolved, nil
}

// resolveExisting follows symlinks for the longest existing prefix of path
// and appends the rest unchanged.
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	dir, base := filepath.Dir(path), filepath.Base(path)
	if dir == path {
		return path, nil
	}

	resolvedDir, err := resolveExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

// WriteFile atomically replaces root/rel with content, creating parent
// directories. Readers see either the old or the new file, never a mix.
func WriteFile(root, rel string, content []byte, perm os.FileMode) error {
	resolved, err := Resolve(root, rel)
	if err != nil {
		return err
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Same directory so the rename never crosses filesystems.
	tmp, err := os.CreateTemp(dir, ".glance-stream-sync-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, resolved); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", resolved, err)
	}

	success = true
	return nil
}

// resolveEntry is Resolve without following the final path component, so a
// symlink names itself rather than its target.
func resolveEntry(root, rel string) (string, error) {
	clean := filepath.Clean(rel)
	base := filepath.Base(clean)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("path '%s' does not name an entry inside the root", rel)
	}
	dir, err := Resolve(root, filepath.Dir(clean))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, base), nil
}

// RemoveIfExists removes root/rel. A symlink is removed itself, wherever it
// points. It reports whether anything was removed; a missing entry is not an
// error.
func RemoveIfExists(root, rel string) (bool, error) {
	resolved, err := resolveEntry(root, rel)
	if err != nil {
		return false, err
	}
	if err := os.Remove(resolved); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Exists reports whether root/rel exists. A dangling symlink exists.
func Exists(root, rel string) (bool, error) {
	resolved, err := resolveEntry(root, rel)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(resolved)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
