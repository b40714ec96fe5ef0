package vm

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	log "github.com/sirupsen/logrus"

	vmwlibvirt "github.com/jbweber/vmw/internal/libvirt"
	"github.com/jbweber/vmw/internal/metadata"
	"github.com/jbweber/vmw/internal/status"
)

// Trash removes a VM and its disks.
//
// This orchestrates the removal:
//  1. Refuse a base VM that other VMs were cloned from, unless forced
//  2. Force stop the VM if it is active
//  3. Collect its file-backed disks, skipping any another domain uses
//  4. Undefine the domain (with NVRAM and managed save cleanup)
//  5. Delete the disks (best effort)
//  6. Remove its stored config
func (m *Manager) Trash(ctx context.Context, name string, force bool) error {
	// Step 1: Check for dependent clones
	dom, err := m.lookup(name)
	if err != nil {
		return err
	}

	isBase, _, err := metadata.Get(m.store, name, metadata.KeyIsBase)
	if err != nil {
		return fmt.Errorf("failed to read config of %s: %w", name, err)
	}
	if isBase == "true" {
		clones, err := m.Clones(ctx, name)
		if err != nil {
			return err
		}
		if len(clones) > 0 {
			if !force {
				return fmt.Errorf("%w: %s is used by %v", ErrBaseInUse, name, clones)
			}
			log.Warnf("trashing %s although %v depend on it", name, clones)
		}
	}

	// Step 2: Stop it
	st, err := m.state(dom)
	if err != nil {
		return err
	}
	if status.IsActive(st) {
		if err := m.destroy(dom); err != nil {
			return err
		}
	}

	// Step 3: Collect disks
	xml, err := m.client.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
	if err != nil {
		return fmt.Errorf("failed to get XML of %s: %w", name, err)
	}
	parsed, err := vmwlibvirt.ParseDomain(xml)
	if err != nil {
		return err
	}
	users, err := m.diskUsers(name)
	if err != nil {
		return err
	}
	var disks []vmwlibvirt.Disk
	for _, d := range vmwlibvirt.FileDisks(parsed) {
		if other, ok := users[d.Path]; ok {
			log.Warnf("keeping disk %s: also used by %s", d.Path, other)
			continue
		}
		disks = append(disks, d)
	}

	// Step 4: Undefine
	log.Infof("Undefining %s...", name)
	flags := libvirt.DomainUndefineNvram | libvirt.DomainUndefineManagedSave
	if err := m.client.DomainUndefineFlags(dom, flags); err != nil {
		return fmt.Errorf("failed to undefine %s: %w", name, err)
	}

	// Step 5: Delete disks
	deleted := 0
	for _, d := range disks {
		log.Infof("Deleting disk %s...", d.Path)
		if err := m.disks.Delete(ctx, d.Path); err != nil {
			log.Warnf("failed to delete disk %s: %v", d.Path, err)
			continue
		}
		deleted++
	}

	// Step 6: Remove config
	if err := m.store.Remove(name); err != nil {
		log.Warnf("failed to remove config of %s: %v", name, err)
	}

	log.Infof("Trashed %s (%d of %d disks deleted)", name, deleted, len(disks))
	return nil
}

// diskUsers maps the file disks of every domain except name to the domain
// that uses them.
func (m *Manager) diskUsers(name string) (map[string]string, error) {
	domains, err := m.listDomains()
	if err != nil {
		return nil, err
	}

	users := make(map[string]string)
	for _, dom := range domains {
		if dom.Name == name {
			continue
		}
		xml, err := m.client.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
		if err != nil {
			return nil, fmt.Errorf("failed to get XML of %s: %w", dom.Name, err)
		}
		parsed, err := vmwlibvirt.ParseDomain(xml)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dom.Name, err)
		}
		for _, d := range vmwlibvirt.FileDisks(parsed) {
			users[d.Path] = dom.Name
		}
	}
	return users, nil
}

// Clones returns the VMs that record base as their base, sorted by name.
func (m *Manager) Clones(_ context.Context, base string) ([]string, error) {
	domains, err := m.listDomains()
	if err != nil {
		return nil, err
	}

	var clones []string
	for _, dom := range domains {
		if dom.Name == base {
			continue
		}
		b, _, err := metadata.Get(m.store, dom.Name, metadata.KeyBase)
		if err != nil {
			log.Debugf("failed to read config of %s: %v", dom.Name, err)
			continue
		}
		if b == base {
			clones = append(clones, dom.Name)
		}
	}
	return clones, nil
}
