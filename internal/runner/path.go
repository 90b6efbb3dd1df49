package runner

import (
	"fmt"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// Resolve returns the file to open for path and its coordination key. The
// file is absolute with symlinks resolved. The key is the same path in
// Unicode NFC, so instances that spelled the name in different
// normalization forms agree on it; the file keeps the on-disk bytes.
func Resolve(path string) (file, key string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("runner: absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", "", fmt.Errorf("runner: resolve %s: %w", abs, err)
	}
	return resolved, norm.NFC.String(resolved), nil
}

// CanonicalPath returns only the coordination key for path.
func CanonicalPath(path string) (string, error) {
	_, key, err := Resolve(path)
	return key, err
}
