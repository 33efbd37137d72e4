// Package logpath maps test files to the log files their workers write.
package logpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirMode is the permission used for directories created under the log root.
const DirMode os.FileMode = 0o700

// Suffix is appended to the test file path to form its log file name.
const Suffix = ".log"

// Resolver derives <root>/<test file>.log and creates its directory.
type Resolver struct {
	root string
}

// New creates a resolver rooted at root.
func New(root string) *Resolver {
	return &Resolver{root: root}
}

// Root returns the log root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Path returns the log file path for testFile without touching the
// filesystem. The test file is cleaned as if it were rooted, so neither
// ".." segments nor absolute paths can escape the log root.
func (r *Resolver) Path(testFile string) (string, error) {
	if strings.TrimSpace(testFile) == "" {
		return "", errors.New("empty test file")
	}
	rel := strings.TrimPrefix(filepath.Clean(string(filepath.Separator)+testFile), string(filepath.Separator))
	if rel == "" {
		return "", fmt.Errorf("test file %q has no name", testFile)
	}
	return filepath.Join(r.root, rel+Suffix), nil
}

// Resolve returns the log file path for testFile, creating the containing
// directory with owner-only permissions when it does not exist yet.
func (r *Resolver) Resolve(testFile string) (string, error) {
	path, err := r.Path(testFile)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return path, nil
	}
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return "", fmt.Errorf("create log directory %s: %w", dir, err)
	}
	return path, nil
}
