package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalReader reads metadata from a mirror on the local filesystem. The base
// may be a file:// URL or a plain directory path.
type LocalReader struct{}

func (LocalReader) ReadFile(ctx context.Context, base, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := localRoot(base)
	if err != nil {
		return nil, &SourceError{Source: relPath, Operation: "read", Err: err}
	}

	absPath := filepath.Clean(filepath.Join(root, filepath.FromSlash(relPath)))

	// Metadata paths come from the index; keep them inside the mirror.
	rootPrefix := root + string(filepath.Separator)
	if absPath != root && !strings.HasPrefix(absPath, rootPrefix) {
		return nil, &SourceError{
			Source:    relPath,
			Operation: "read",
			Err:       fmt.Errorf("path '%s' resolves outside mirror root", relPath),
		}
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, &SourceError{Source: relPath, Operation: "read", Err: err, Hint: "check that the mirror directory is populated"}
	}
	return content, nil
}

func localRoot(base string) (string, error) {
	if strings.HasPrefix(base, "file:") {
		u, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parsing mirror url: %w", err)
		}
		base = u.Path
	}
	if base == "" {
		return "", fmt.Errorf("mirror path is empty")
	}
	return filepath.Abs(base)
}
