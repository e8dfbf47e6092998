package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"YubiAge/internal/log"
)

// DefaultPath returns <user config dir>/yubiage/settings.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting config directory: %w", err)
	}
	return filepath.Join(dir, "yubiage", "settings.toml"), nil
}

// Store reads and writes one settings file.
type Store struct {
	Path string
}

// NewStore creates a Store for path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the settings file. A missing file yields Defaults. Remembered
// key files that no longer exist are dropped from the result.
func (s *Store) Load() (*Settings, error) {
	settings := Defaults()

	if _, err := os.Stat(s.Path); os.IsNotExist(err) {
		return settings, nil
	}
	if _, err := toml.DecodeFile(s.Path, settings); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", s.Path, err)
	}

	if paths := settings.KeyPaths(); len(paths) > 0 {
		var kept []string
		for _, p := range paths {
			if _, err := os.Stat(p); err != nil {
				log.Info("forgetting missing key file", log.String("path", p))
				continue
			}
			kept = append(kept, p)
		}
		settings.RememberKeys(kept)
	}
	return settings, nil
}

// Save writes settings, creating the directory if needed. The file is
// replaced atomically.
func (s *Store) Save(settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".settings-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(settings); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return err
	}
	log.Debug("saved settings", log.String("path", s.Path))
	return nil
}
