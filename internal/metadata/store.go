package metadata

import (
	"fmt"
)

// Store loads and saves per-VM config strings.
type Store interface {
	Load(name string) (Config, error)
	Save(name string, cfg Config) error
	Remove(name string) error
}

// Get returns the value of key for a VM and whether it is set.
func Get(s Store, name, key string) (string, bool, error) {
	cfg, err := s.Load(name)
	if err != nil {
		return "", false, err
	}
	value, ok := cfg.Get(key)
	return value, ok, nil
}

// Set stores key=value for a VM, leaving its other keys untouched.
func Set(s Store, name, key, value string) error {
	cfg, err := s.Load(name)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := s.Save(name, cfg); err != nil {
		return fmt.Errorf("failed to save config of %s: %w", name, err)
	}
	return nil
}

// Delete removes key from a VM's config. Nothing is written when the key is
// absent.
func Delete(s Store, name, key string) error {
	cfg, err := s.Load(name)
	if err != nil {
		return err
	}
	if !cfg.Delete(key) {
		return nil
	}
	if err := s.Save(name, cfg); err != nil {
		return fmt.Errorf("failed to save config of %s: %w", name, err)
	}
	return nil
}

// New returns the store for a connection mode: descriptions for the system
// daemon and sidecar files in dir for the session daemon.
func New(connection string, client descriptionClient, dir string) (Store, error) {
	switch connection {
	case "system":
		return NewDescriptionStore(client), nil
	case "session":
		return NewFileStore(dir), nil
	default:
		return nil, fmt.Errorf("unknown connection %q", connection)
	}
}
