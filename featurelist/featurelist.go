// Package featurelist enumerates the work items of a run: every file below a
// root directory whose name ends with a given extension.
package featurelist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FeatureExtension is the suffix of Gherkin feature files.
const FeatureExtension = ".feature"

// PathNotFoundError is returned when the enumeration root does not exist.
type PathNotFoundError struct {
	Path string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

// IsPathNotFound checks if the error is or wraps a PathNotFoundError
func IsPathNotFound(err error) bool {
	var notFound *PathNotFoundError
	return err != nil && errors.As(err, &notFound)
}

// CleanRoot strips stray quotes from a configured path and converts
// backslashes to forward slashes so the result is usable on every platform.
func CleanRoot(path string) string {
	path = strings.ReplaceAll(path, `"`, "")
	path = strings.ReplaceAll(path, `\`, "/")
	return strings.TrimSpace(path)
}

// Files walks root recursively and returns every file whose name ends with
// ext, as absolute paths with '/' separators. The result is in lexical walk
// order, so repeated calls on an unchanged tree return the same sequence.
// A tree without matches yields an empty slice and no error.
func Files(root string, ext string) ([]string, error) {
	cleaned := CleanRoot(root)
	abs, err := filepath.Abs(filepath.FromSlash(cleaned))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %q: %w", root, err)
	}

	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &PathNotFoundError{Path: filepath.ToSlash(abs)}
		}
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}

	files := make([]string, 0)
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ext) {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", abs, err)
	}

	return files, nil
}
