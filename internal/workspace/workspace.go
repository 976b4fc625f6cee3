package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/cfgsync/internal/logfields"
)

// Prefix names every scratch directory this package creates. Prune only touches
// entries carrying it.
const Prefix = "cfgsync-"

// Manager owns one scratch directory
type Manager struct {
	baseDir string
	tempDir string
	now     func() time.Time
}

// NewManager creates a new workspace manager rooted at baseDir (os.TempDir when empty)
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		baseDir: baseDir,
		now:     time.Now,
	}
}

// Create creates a fresh timestamped directory. Calling it twice without Cleanup is an error.
func (m *Manager) Create() error {
	if m.tempDir != "" {
		return fmt.Errorf("workspace already created: %s", m.tempDir)
	}
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create scratch root: %w", err)
	}

	timestamp := m.now().Format("20060102-150405")
	tempDir, err := os.MkdirTemp(m.baseDir, Prefix+timestamp+"-*")
	if err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	m.tempDir = tempDir
	slog.Debug("Created workspace", logfields.Path(tempDir))
	return nil
}

// GetPath returns the path to the workspace directory
func (m *Manager) GetPath() string {
	return m.tempDir
}

// Cleanup removes the workspace directory and everything in it.
func (m *Manager) Cleanup() error {
	if m.tempDir == "" {
		return nil
	}

	if err := os.RemoveAll(m.tempDir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}

	slog.Debug("Cleaned up workspace", logfields.Path(m.tempDir))
	m.tempDir = ""
	return nil
}

// Prune removes scratch directories under baseDir last modified before now-maxAge.
// It returns the removed paths. A missing baseDir is not an error.
func Prune(baseDir string, maxAge time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read scratch root: %w", err)
	}

	cutoff := now.Add(-maxAge)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(baseDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to prune stale workspace", logfields.Path(path), logfields.Error(err))
			continue
		}
		removed = append(removed, path)
	}
	return removed, nil
}
