// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// FindRuleFiles resolves a rules path to the list of workflow files it names.
// A file path is returned as-is; a directory is searched recursively for
// *.hcl files. The result is sorted so load order is deterministic.
func FindRuleFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("rules path: %w", err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(path), "**/*.hcl")
	if err != nil {
		return nil, fmt.Errorf("searching %s for workflow files: %w", path, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no .hcl workflow files found under %s", path)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Join(path, m))
	}
	sort.Strings(files)
	return files, nil
}
