// Package naming holds the naming conventions vmw applies to VMs and the
// files it creates for them.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxNameLength bounds VM names so derived file names stay short.
const MaxNameLength = 64

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// ValidateVMName checks a name for a VM that vmw is about to create.
// Names must start and end with a lowercase alphanumeric character and
// contain only lowercase alphanumerics, hyphens, or underscores.
//
// Existing VMs are addressed by whatever name libvirt knows them by; only
// new names are validated.
func ValidateVMName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name must be at most %d characters, got %d", MaxNameLength, len(name))
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must start and end with lowercase alphanumeric characters and contain only lowercase alphanumeric, hyphens, or underscores, got %q", name)
	}
	return nil
}

// OverlayDiskPath returns the overlay image path for a clone: a qcow2 file
// named after the clone, next to the base disk.
//
// Example: (/var/lib/libvirt/images/fedora.qcow2, web1) → /var/lib/libvirt/images/web1.qcow2
func OverlayDiskPath(baseDisk, vmName string) string {
	return filepath.Join(filepath.Dir(baseDisk), vmName+".qcow2")
}

// DataOverlayDiskPath returns the overlay image path for a clone's
// additional disk, keyed by the guest device the disk is attached as.
//
// Example: (/var/lib/libvirt/images/fedora-data.qcow2, web1, vdb) → /var/lib/libvirt/images/web1-vdb.qcow2
func DataOverlayDiskPath(baseDisk, vmName, target string) string {
	return filepath.Join(filepath.Dir(baseDisk), vmName+"-"+target+".qcow2")
}

// ConfigFileName returns the sidecar config file name for a VM.
// Format: {vmName}.conf
func ConfigFileName(vmName string) string {
	return vmName + ".conf"
}

// ConfigFilePath returns the sidecar config file path for a VM in dir.
// Names containing path separators are rejected so a VM name can never
// escape dir.
func ConfigFilePath(dir, vmName string) (string, error) {
	if vmName == "" || vmName == "." || vmName == ".." || strings.ContainsAny(vmName, `/\`) {
		return "", fmt.Errorf("invalid VM name for config file: %q", vmName)
	}
	return filepath.Join(dir, ConfigFileName(vmName)), nil
}
