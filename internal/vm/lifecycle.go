package vm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/jbweber/vmw/internal/status"
)

// EnsureRunning starts a VM if needed and waits until libvirt reports it
// running. A paused VM is resumed and a suspended one woken up.
func (m *Manager) EnsureRunning(ctx context.Context, name string, timeout time.Duration) error {
	dom, err := m.lookup(name)
	if err != nil {
		return err
	}
	return m.ensureRunning(ctx, dom, timeout)
}

func (m *Manager) ensureRunning(ctx context.Context, dom libvirt.Domain, timeout time.Duration) error {
	st, err := m.state(dom)
	if err != nil {
		return err
	}
	if status.IsRunning(st) {
		log.Debugf("%s is already running", dom.Name)
		return nil
	}

	switch st {
	case status.StatePaused:
		log.Infof("Resuming %s...", dom.Name)
		if err := m.client.DomainResume(dom); err != nil {
			return fmt.Errorf("failed to resume %s: %w", dom.Name, err)
		}
	case status.StatePMSuspended:
		log.Infof("Waking up %s...", dom.Name)
		if err := m.client.DomainPmWakeup(dom, 0); err != nil {
			return fmt.Errorf("failed to wake up %s: %w", dom.Name, err)
		}
	default:
		log.Infof("Starting %s...", dom.Name)
		if err := m.client.DomainCreate(dom); err != nil {
			return fmt.Errorf("failed to start %s: %w", dom.Name, err)
		}
	}

	err = m.waitForState(ctx, dom, timeout, status.IsRunning)
	if err != nil {
		return fmt.Errorf("failed waiting for %s to start: %w", dom.Name, err)
	}

	log.Debugf("%s is running", dom.Name)
	return nil
}

// EnsureStopped shuts a VM down gracefully and waits until libvirt reports
// it shut off. With force, a VM still running when the timeout elapses (or
// that refuses the shutdown request) is destroyed instead.
func (m *Manager) EnsureStopped(ctx context.Context, name string, timeout time.Duration, force bool) error {
	dom, err := m.lookup(name)
	if err != nil {
		return err
	}
	return m.ensureStopped(ctx, dom, timeout, force)
}

func (m *Manager) ensureStopped(ctx context.Context, dom libvirt.Domain, timeout time.Duration, force bool) error {
	st, err := m.state(dom)
	if err != nil {
		return err
	}
	if status.IsStopped(st) {
		log.Debugf("%s is already stopped", dom.Name)
		return nil
	}

	if status.IsTransitioning(st) {
		log.Infof("%s is already shutting down", dom.Name)
	} else {
		log.Infof("Shutting down %s...", dom.Name)
		if err := m.client.DomainShutdown(dom); err != nil {
			if !force {
				return fmt.Errorf("failed to shut down %s: %w", dom.Name, err)
			}
			log.Warnf("graceful shutdown of %s failed: %v", dom.Name, err)
			return m.destroy(dom)
		}
	}

	err = m.waitForState(ctx, dom, timeout, status.IsStopped)
	if err == nil {
		log.Debugf("%s is stopped", dom.Name)
		return nil
	}
	if force && errors.Is(err, ErrTimeout) {
		log.Warnf("%s did not shut down within %v", dom.Name, timeout)
		return m.destroy(dom)
	}
	return fmt.Errorf("failed waiting for %s to stop: %w", dom.Name, err)
}

func (m *Manager) destroy(dom libvirt.Domain) error {
	log.Infof("Force stopping %s...", dom.Name)
	if err := m.client.DomainDestroy(dom); err != nil {
		return fmt.Errorf("failed to force stop %s: %w", dom.Name, err)
	}
	return nil
}

// StopAll stops every running VM. Every VM is attempted; failures are
// collected and returned together.
func (m *Manager) StopAll(ctx context.Context, timeout time.Duration, force bool) error {
	domains, _, err := m.client.ConnectListAllDomains(1, libvirt.ConnectListDomainsActive)
	if err != nil {
		return fmt.Errorf("failed to list running VMs: %w", err)
	}

	var errs error
	for _, dom := range domains {
		if err := m.ensureStopped(ctx, dom, timeout, force); err != nil {
			log.Warnf("failed to stop %s: %v", dom.Name, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// waitForState polls the domain state at 1 Hz until done reports true.
func (m *Manager) waitForState(ctx context.Context, dom libvirt.Domain, timeout time.Duration, done func(status.State) bool) error {
	return m.poller.Until(ctx, timeout, func(context.Context) (bool, error) {
		st, err := m.state(dom)
		if err != nil {
			return false, err
		}
		log.Debugf("%s state: %s", dom.Name, st)
		return done(st), nil
	})
}
