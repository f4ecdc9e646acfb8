package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/claude/treadmill/internal/models"
)

// ErrInvalidSettings wraps validation failures from Save.
var ErrInvalidSettings = errors.New("invalid settings")

// SettingsFile persists the operator-tunable kiosk settings separately from
// the deployment config so the admin API can rewrite it.
type SettingsFile struct {
	mu   sync.Mutex
	path string
}

func NewSettingsFile(path string) *SettingsFile {
	return &SettingsFile{path: path}
}

func (f *SettingsFile) Path() string { return f.path }

// Load reads the settings. A missing file yields the defaults. Keys absent
// from the file keep their default values.
func (f *SettingsFile) Load() (models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := models.DefaultSettings()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return models.DefaultSettings(), fmt.Errorf("parsing settings file: %w", err)
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return models.DefaultSettings(), fmt.Errorf("invalid settings file: %w", err)
	}
	return s, nil
}

// Save validates s and replaces the file atomically.
func (f *SettingsFile) Save(s models.Settings) (models.Settings, error) {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return s, fmt.Errorf("encoding settings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return s, fmt.Errorf("creating settings dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return s, fmt.Errorf("writing settings file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return s, fmt.Errorf("replacing settings file: %w", err)
	}
	return s, nil
}
