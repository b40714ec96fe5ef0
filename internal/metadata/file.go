package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/jbweber/vmw/internal/naming"
)

// FileStore keeps each VM's config string in <Dir>/<vm>.conf.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store backed by sidecar files in dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Load reads the VM's sidecar file. A missing file is an empty config.
func (s *FileStore) Load(name string) (Config, error) {
	path, err := naming.ConfigFilePath(s.Dir, name)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the VM's sidecar file through a temp file and rename.
func (s *FileStore) Save(name string, cfg Config) error {
	path, err := naming.ConfigFilePath(s.Dir, name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+naming.ConfigFileName(name)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(cfg.String() + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	log.Debugf("saved config for %s in %s: %s", name, path, cfg)
	return nil
}

// Remove deletes the VM's sidecar file. A missing file is not an error.
func (s *FileStore) Remove(name string) error {
	path, err := naming.ConfigFilePath(s.Dir, name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove config file: %w", err)
	}
	return nil
}
