package config

import (
	"os"
	"path/filepath"
)

// Paths holds the per-user directories vmw reads and writes.
type Paths struct {
	// ConfigDir holds settings.yaml.
	// Linux: $XDG_CONFIG_HOME/vmw, falling back to ~/.config/vmw
	ConfigDir string

	// StateDir holds sidecar VM config files for session connections.
	// Linux: $XDG_STATE_HOME/vmw, falling back to ~/.local/state/vmw
	StateDir string
}

// GetPaths returns XDG-aware paths for the current user.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		p.ConfigDir = filepath.Join(xdgConfig, "vmw")
	} else {
		p.ConfigDir = filepath.Join(home, ".config", "vmw")
	}

	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		p.StateDir = filepath.Join(xdgState, "vmw")
	} else {
		p.StateDir = filepath.Join(home, ".local", "state", "vmw")
	}

	return p, nil
}
