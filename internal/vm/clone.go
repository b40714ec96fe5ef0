package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	vmwlibvirt "github.com/jbweber/vmw/internal/libvirt"
	"github.com/jbweber/vmw/internal/metadata"
	"github.com/jbweber/vmw/internal/naming"
)

// CloneOptions configures Clone.
type CloneOptions struct {
	// User overrides the SSH user inherited from the base.
	User string

	// Start boots the clone after it is defined.
	Start bool

	// StartTimeout bounds the wait for the clone to run when Start is set.
	StartTimeout time.Duration
}

// Clone creates a VM named name whose disks are qcow2 overlays of base's
// disks.
//
// This orchestrates the clone:
//  1. Validate the name and check no VM uses it
//  2. Read the base definition and find its file-backed disks
//  3. Stop the base so its disks are quiescent
//  4. Create one overlay per disk next to the base disk
//  5. Define the clone from the base XML with fresh identity
//  6. Record base/user on the clone and mark the base
//
// If a step after overlay creation fails, the overlays, the clone's domain
// and the base mark written by this call are removed (best effort).
func (m *Manager) Clone(ctx context.Context, base, name string, opts CloneOptions) (err error) {
	// Step 1: Validate the new name
	if err := naming.ValidateVMName(name); err != nil {
		return fmt.Errorf("invalid VM name: %w", err)
	}
	if m.exists(name) {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}

	// Step 2: Find the base disks
	baseDom, err := m.lookup(base)
	if err != nil {
		return err
	}
	baseXML, err := m.client.DomainGetXMLDesc(baseDom, libvirt.DomainXMLInactive)
	if err != nil {
		return fmt.Errorf("failed to get XML of %s: %w", base, err)
	}
	parsed, err := vmwlibvirt.ParseDomain(baseXML)
	if err != nil {
		return err
	}
	if _, err := vmwlibvirt.PrimaryDisk(parsed); err != nil {
		return err
	}
	baseDisks := vmwlibvirt.FileDisks(parsed)

	// Step 3: Stop the base
	if err := m.ensureStopped(ctx, baseDom, m.opts.StopTimeout, false); err != nil {
		return fmt.Errorf("failed to stop base %s: %w", base, err)
	}

	var (
		created             []string
		defined, markedBase bool
		done                bool
	)
	defer func() {
		if err != nil && !done {
			m.cleanupClone(ctx, base, name, created, defined, markedBase)
		}
	}()

	// Step 4: Create the overlays
	overlays := make(map[string]string, len(baseDisks))
	for i, d := range baseDisks {
		overlay := overlayPath(d, name, i)
		format := m.disks.Format(ctx, d.Path, d.Format)
		log.Infof("Creating overlay %s...", overlay)
		if err = m.disks.CreateOverlay(ctx, d.Path, format, overlay); err != nil {
			return err
		}
		created = append(created, overlay)
		overlays[d.Path] = overlay
	}

	// Step 5: Define the clone
	cloneXML, err := vmwlibvirt.CloneDomainXML(baseXML, vmwlibvirt.CloneOptions{
		Name:     name,
		UUID:     uuid.New().String(),
		Overlays: overlays,
	})
	if err != nil {
		return err
	}
	log.Infof("Defining %s...", name)
	if _, err = m.client.DomainDefineXML(cloneXML); err != nil {
		return fmt.Errorf("failed to define %s: %w", name, err)
	}
	defined = true

	// Step 6: Record the relationship
	user := opts.User
	if user == "" {
		user, _, err = metadata.Get(m.store, base, metadata.KeyUser)
		if err != nil {
			return fmt.Errorf("failed to read config of %s: %w", base, err)
		}
	}
	wasBase, _, err := metadata.Get(m.store, base, metadata.KeyIsBase)
	if err != nil {
		return fmt.Errorf("failed to read config of %s: %w", base, err)
	}
	if wasBase != "true" {
		if err = metadata.Set(m.store, base, metadata.KeyIsBase, "true"); err != nil {
			return err
		}
		markedBase = true
	}
	if err = metadata.Set(m.store, name, metadata.KeyBase, base); err != nil {
		return err
	}
	if user != "" {
		if err = metadata.Set(m.store, name, metadata.KeyUser, user); err != nil {
			return err
		}
	}

	done = true
	log.Infof("Cloned %s from %s", name, base)

	// A clone that fails to boot is kept.
	if opts.Start {
		return m.EnsureRunning(ctx, name, opts.StartTimeout)
	}
	return nil
}

// overlayPath names the clone overlay for the i-th file disk of the base.
func overlayPath(d vmwlibvirt.Disk, name string, i int) string {
	if i == 0 {
		return naming.OverlayDiskPath(d.Path, name)
	}
	target := d.Target
	if target == "" {
		target = fmt.Sprintf("disk%d", i)
	}
	return naming.DataOverlayDiskPath(d.Path, name, target)
}

// cleanupClone removes what a failed clone created. It never returns an
// error.
func (m *Manager) cleanupClone(ctx context.Context, base, name string, overlays []string, defined, markedBase bool) {
	log.Infof("Cleaning up after failed clone of %s...", name)

	if defined {
		dom, err := m.client.DomainLookupByName(name)
		if err != nil {
			log.Warnf("failed to lookup %s for cleanup: %v", name, err)
		} else if err := m.client.DomainUndefineFlags(dom, libvirt.DomainUndefineNvram); err != nil {
			log.Warnf("failed to undefine %s: %v", name, err)
		}
		if err := m.store.Remove(name); err != nil {
			log.Warnf("failed to remove config of %s: %v", name, err)
		}
	}

	if markedBase {
		if err := metadata.Delete(m.store, base, metadata.KeyIsBase); err != nil {
			log.Warnf("failed to unmark base %s: %v", base, err)
		}
	}

	for _, overlay := range overlays {
		if err := m.disks.Delete(ctx, overlay); err != nil {
			log.Warnf("failed to remove overlay %s: %v", overlay, err)
		}
	}
}
