package vm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vmw/internal/metadata"
	"github.com/jbweber/vmw/internal/poll"
	"github.com/jbweber/vmw/internal/status"
)

var (
	// ErrTimeout is wrapped by errors from operations whose polling window
	// elapsed.
	ErrTimeout = poll.ErrTimeout

	// ErrNoIPAddress is returned when libvirt reports no guest address.
	ErrNoIPAddress = errors.New("no IP address found")

	// ErrNoUser is returned when no SSH user is recorded or configured.
	ErrNoUser = errors.New("no user set")

	// ErrExists is returned when creating a VM whose name is taken.
	ErrExists = errors.New("VM already exists")

	// ErrBaseInUse is returned when trashing a base VM that clones depend on.
	ErrBaseInUse = errors.New("VM is the base of other VMs")
)

// Options holds settings that influence VM operations.
type Options struct {
	// SSHPort is probed by EnsureReachable.
	SSHPort int

	// DefaultUser is returned by User when a VM has none recorded.
	DefaultUser string

	// StopTimeout bounds the shutdown of a base VM before cloning it.
	StopTimeout time.Duration
}

// Manager performs VM operations against one libvirt connection.
type Manager struct {
	client libvirtClient
	store  metadata.Store
	disks  diskManager
	opts   Options

	poller *poll.Poller
	dial   func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewManager creates a VM manager.
func NewManager(client libvirtClient, store metadata.Store, disks diskManager, opts Options) *Manager {
	if opts.SSHPort == 0 {
		opts.SSHPort = 22
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 60 * time.Second
	}

	d := &net.Dialer{Timeout: time.Second}
	return &Manager{
		client: client,
		store:  store,
		disks:  disks,
		opts:   opts,
		poller: &poll.Poller{},
		dial:   d.DialContext,
	}
}

// lookup resolves a VM name to a libvirt domain.
func (m *Manager) lookup(name string) (libvirt.Domain, error) {
	dom, err := m.client.DomainLookupByName(name)
	if err != nil {
		return libvirt.Domain{}, fmt.Errorf("VM '%s' not found: %w", name, err)
	}
	return dom, nil
}

// exists reports whether libvirt knows a domain by that name.
func (m *Manager) exists(name string) bool {
	_, err := m.client.DomainLookupByName(name)
	return err == nil
}

func (m *Manager) state(dom libvirt.Domain) (status.State, error) {
	s, _, err := m.client.DomainGetState(dom, 0)
	if err != nil {
		return status.StateUnknown, fmt.Errorf("failed to get state of %s: %w", dom.Name, err)
	}
	return status.FromLibvirt(s), nil
}
