package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/vmw/internal/command"
	"github.com/jbweber/vmw/internal/config"
	"github.com/jbweber/vmw/internal/disk"
	"github.com/jbweber/vmw/internal/libvirt"
	"github.com/jbweber/vmw/internal/metadata"
	"github.com/jbweber/vmw/internal/remote"
	"github.com/jbweber/vmw/internal/vm"
)

// connectTimeout bounds dialing the libvirt socket.
const connectTimeout = 5 * time.Second

// app holds everything a command needs for one invocation.
type app struct {
	settings *config.Settings
	client   *libvirt.Client
	runner   command.Runner
	vms      *vm.Manager
}

// loadSettings reads the settings file with the global flags applied.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	s, err := config.Load(settingsFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	log.Debugf("connection: %s, socket: %s", s.URI(), s.SocketPath())
	return s, nil
}

// newApp loads settings and connects to libvirt. Callers must Close it.
func newApp(cmd *cobra.Command) (*app, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	client, err := libvirt.ConnectWithContext(cmd.Context(), s.SocketPath(), s.URI(), connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt (%s): %w", s.URI(), err)
	}

	store, err := metadata.New(s.Connection, client.Libvirt(), s.VMConfigDir())
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	runner := command.NewExec()
	disks := disk.NewManager(runner, client.Libvirt(), s.QemuImg)
	vms := vm.NewManager(client.Libvirt(), store, disks, vm.Options{
		SSHPort:     s.SSHPort,
		DefaultUser: s.DefaultUser,
		StopTimeout: s.StopTimeout,
	})

	return &app{settings: s, client: client, runner: runner, vms: vms}, nil
}

// Close releases the libvirt connection.
func (a *app) Close() {
	if err := a.client.Close(); err != nil {
		log.Warnf("failed to close libvirt connection: %v", err)
	}
}

// remote returns an ssh client configured from settings.
func (a *app) remote() *remote.Client {
	return remote.New(a.runner, remote.Options{
		Port:     a.settings.SSHPort,
		Identity: a.settings.SSHIdentity,
		Extra:    a.settings.SSHOptions,
		Transfer: a.settings.Transfer,
	})
}

// target starts a VM if needed, waits until it accepts ssh, and returns
// the user and address to connect to.
func (a *app) target(ctx context.Context, name string) (remote.Target, error) {
	user, err := a.vms.User(ctx, name)
	if err != nil {
		return remote.Target{}, err
	}
	ip, err := a.vms.EnsureReachable(ctx, name, a.settings.StartTimeout)
	if err != nil {
		return remote.Target{}, err
	}
	return remote.Target{User: user, Host: ip}, nil
}
