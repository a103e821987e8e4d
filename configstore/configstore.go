// Package configstore persists the configured source set as JSON on disk.
// The location defaults to the per-user config directory and can be
// overridden with the INFIMOUNT_CONFIG environment variable.
package configstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/infimount/infimount"
	"github.com/infimount/infimount/errors"
)

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "INFIMOUNT_CONFIG"

// FileStore reads and writes the source set at one file path. It implements
// registry.Store.
type FileStore struct {
	path string
}

// NewFileStore resolves the default config location: the INFIMOUNT_CONFIG
// environment variable when set, otherwise sources.json under the user's
// config directory.
func NewFileStore() *FileStore {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return NewFileStoreAt(p)
	}
	return NewFileStoreAt(filepath.Join(xdg.ConfigHome, "infimount", "sources.json"))
}

// NewFileStoreAt uses an explicit file path.
func NewFileStoreAt(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }

// LoadSources reads the persisted source set. A missing file means no
// configuration yet and yields an empty slice, not an error. Sources with
// kinds this build cannot construct load fine; they only fail at
// connection-build time.
func (s *FileStore) LoadSources() ([]infimount.Source, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []infimount.Source{}, nil
		}
		return nil, errors.NewPath("config.load", s.path, errors.ErrConfig).WithMessage(err.Error())
	}

	var sources []infimount.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, errors.NewPath("config.load", s.path, errors.ErrConfig).WithMessage(err.Error())
	}
	return sources, nil
}

// SaveSources writes the full source set, creating missing parent
// directories. Config values may hold credentials, so the file is written
// owner-readable only.
func (s *FileStore) SaveSources(sources []infimount.Source) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.NewPath("config.save", s.path, errors.ErrConfig).WithMessage(err.Error())
	}

	data, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return errors.NewPath("config.save", s.path, errors.ErrConfig).WithMessage(err.Error())
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.NewPath("config.save", s.path, errors.ErrConfig).WithMessage(err.Error())
	}
	return nil
}
