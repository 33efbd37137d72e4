package master

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/randomizedcoder/go-tork/internal/protocol"
)

// Load adds search paths and files that every later worker loads before
// its test file. Paths are searched, most recently added first, when a file
// is given by relative path; a file whose directory is itself one of paths
// is looked up by base name. Each file is loaded once however often it is
// requested. Nothing is acknowledged unless every file was found.
func (m *Master) Load(ctx context.Context, cmd *protocol.Command, paths, files []string) error {
	abs := make([]string, 0, len(paths))
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		cleaned = append(cleaned, filepath.Clean(p))
		a, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("load path %q: %w", p, err)
		}
		abs = append(abs, a)
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	loadPath := slices.Clone(abs)
	for _, p := range m.loadPath {
		if !slices.Contains(loadPath, p) {
			loadPath = append(loadPath, p)
		}
	}

	var resolved []string
	for _, f := range files {
		if dir, base := filepath.Split(f); dir != "" && slices.Contains(cleaned, filepath.Clean(dir)) {
			f = base
		}
		path, err := findFile(f, loadPath)
		if err != nil {
			return err
		}
		resolved = append(resolved, path)
	}

	m.loadPath = loadPath
	for _, path := range resolved {
		if m.loaded[path] {
			continue
		}
		m.loaded[path] = true
		m.preloads = append(m.preloads, path)
	}

	m.logger.Info("files_loaded",
		"load_path", m.loadPath,
		"preloads", len(m.preloads),
	)
	return m.cfg.Client.Ack(cmd)
}

// Loaded returns the preload files and search paths inherited by workers.
func (m *Master) Loaded() (preloads, loadPath []string) {
	m.loadMu.RLock()
	defer m.loadMu.RUnlock()
	return slices.Clone(m.preloads), slices.Clone(m.loadPath)
}

// findFile resolves f against the search paths, then the working directory.
func findFile(f string, loadPath []string) (string, error) {
	if filepath.IsAbs(f) {
		if _, err := os.Stat(f); err != nil {
			return "", fmt.Errorf("load %s: %w", f, err)
		}
		return filepath.Clean(f), nil
	}
	for _, dir := range loadPath {
		candidate := filepath.Join(dir, f)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	abs, err := filepath.Abs(f)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", f, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("load %s: not found in load path %v: %w", f, loadPath, err)
	}
	return abs, nil
}
