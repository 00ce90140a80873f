// Package cleanup removes the ephemeral files a job created.
package cleanup

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
)

// Manager deletes ephemeral paths. It never returns an error: failures are
// logged and counted so they cannot alter a job's response.
type Manager struct {
	logger    *slog.Logger
	onFailure func(path string, err error)
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// OnFailure registers a hook called for every path that could not be removed.
func (m *Manager) OnFailure(fn func(path string, err error)) {
	m.onFailure = fn
}

// Remove deletes regular files and removes directories recursively. Paths
// that no longer exist are skipped. It returns how many paths failed.
func (m *Manager) Remove(paths []string) int {
	failed := 0
	for _, path := range paths {
		if err := removePath(path); err != nil {
			failed++
			m.logger.Warn("cleanup failed", "path", path, "err", err)
			if m.onFailure != nil {
				m.onFailure(path, err)
			}
			continue
		}
		m.logger.Debug("cleaned up ephemeral input", "path", path)
	}
	return failed
}

func removePath(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	switch {
	case info.IsDir():
		return os.RemoveAll(path)
	case info.Mode().IsRegular():
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	default:
		return nil
	}
}
