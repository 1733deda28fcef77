package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
)

// Manager owns one staging directory for the lifetime of a build attempt.
type Manager struct {
	baseDir string
	prefix  string
	tempDir string
}

// NewManager creates a staging manager. Directories are created under baseDir
// (the system temp dir when empty) and named prefix-<random>.
func NewManager(baseDir, prefix string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if prefix == "" {
		prefix = "pkgdocs"
	}
	return &Manager{baseDir: baseDir, prefix: prefix}
}

// Create creates the staging directory. Calling Create again after Cleanup
// starts a fresh directory.
func (m *Manager) Create() error {
	if m.tempDir != "" {
		return nil
	}
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create staging base directory: %w", err)
	}
	dir, err := os.MkdirTemp(m.baseDir, m.prefix+"-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	m.tempDir = dir
	slog.Debug("Created staging directory", logfields.Path(dir))
	return nil
}

// GetPath returns the path to the staging directory, or "" before Create.
func (m *Manager) GetPath() string {
	return m.tempDir
}

// Cleanup removes the staging directory. It is safe to call more than once.
func (m *Manager) Cleanup() error {
	if m.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(m.tempDir); err != nil {
		return fmt.Errorf("failed to cleanup staging directory: %w", err)
	}
	slog.Debug("Cleaned up staging directory", logfields.Path(m.tempDir))
	m.tempDir = ""
	return nil
}

// CreateSubdir creates a subdirectory within the staging directory.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.tempDir == "" {
		return "", fmt.Errorf("staging directory not created")
	}

	subdir := filepath.Join(m.tempDir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	return subdir, nil
}

// IsEmpty reports whether nothing has been staged yet.
func (m *Manager) IsEmpty() bool {
	if m.tempDir == "" {
		return true
	}
	entries, err := os.ReadDir(m.tempDir)
	return err != nil || len(entries) == 0
}
