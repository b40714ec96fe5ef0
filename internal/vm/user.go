package vm

import (
	"context"
	"fmt"

	"github.com/jbweber/vmw/internal/metadata"
)

// SetUser records the SSH user for a VM.
func (m *Manager) SetUser(_ context.Context, name, user string) error {
	if user == "" {
		return fmt.Errorf("user must not be empty")
	}
	if _, err := m.lookup(name); err != nil {
		return err
	}
	if err := metadata.Set(m.store, name, metadata.KeyUser, user); err != nil {
		return fmt.Errorf("failed to set user of %s: %w", name, err)
	}
	return nil
}

// User returns the SSH user for a VM: the recorded one, else the configured
// default. It returns ErrNoUser when neither is set.
func (m *Manager) User(_ context.Context, name string) (string, error) {
	user, ok, err := metadata.Get(m.store, name, metadata.KeyUser)
	if err != nil {
		return "", fmt.Errorf("failed to read config of %s: %w", name, err)
	}
	if ok && user != "" {
		return user, nil
	}
	if m.opts.DefaultUser != "" {
		return m.opts.DefaultUser, nil
	}
	return "", fmt.Errorf("%w for %s (use setuser or default_user)", ErrNoUser, name)
}

// ClearUser forgets the recorded SSH user of a VM.
func (m *Manager) ClearUser(_ context.Context, name string) error {
	if _, err := m.lookup(name); err != nil {
		return err
	}
	if err := metadata.Delete(m.store, name, metadata.KeyUser); err != nil {
		return fmt.Errorf("failed to clear user of %s: %w", name, err)
	}
	return nil
}
