package libvirt

import (
	"errors"
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// ErrNoDisk is returned when a domain has no file-backed disk.
var ErrNoDisk = errors.New("domain has no file-backed disk")

// Disk is a file-backed disk device of a domain.
type Disk struct {
	Target string // guest device, e.g. "vda"
	Path   string // image file on the host
	Format string // driver type, e.g. "qcow2"; empty if unspecified
}

// ParseDomain parses domain XML as returned by DomainGetXMLDesc.
func ParseDomain(xml string) (*libvirtxml.Domain, error) {
	dom := &libvirtxml.Domain{}
	if err := dom.Unmarshal(xml); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	return dom, nil
}

// FileDisks returns the domain's disk devices that have a file source, in
// definition order. CD-ROMs, floppies and network or block sources are skipped.
func FileDisks(dom *libvirtxml.Domain) []Disk {
	if dom.Devices == nil {
		return nil
	}

	var disks []Disk
	for _, d := range dom.Devices.Disks {
		path := diskFile(&d)
		if path == "" {
			continue
		}
		if d.Device != "" && d.Device != "disk" {
			continue
		}

		disk := Disk{Path: path}
		if d.Target != nil {
			disk.Target = d.Target.Dev
		}
		if d.Driver != nil {
			disk.Format = d.Driver.Type
		}
		disks = append(disks, disk)
	}
	return disks
}

// PrimaryDisk returns the first file-backed disk of the domain.
func PrimaryDisk(dom *libvirtxml.Domain) (Disk, error) {
	disks := FileDisks(dom)
	if len(disks) == 0 {
		return Disk{}, fmt.Errorf("%s: %w", dom.Name, ErrNoDisk)
	}
	return disks[0], nil
}

// CloneOptions describes how a clone differs from its base domain.
type CloneOptions struct {
	Name string
	UUID string

	// Overlays maps each file disk path of the base to the overlay that
	// replaces it in the clone.
	Overlays map[string]string
}

// CloneDomainXML returns the definition for a clone of the domain in baseXML.
//
// The clone gets the new name and UUID, every file-backed disk points at its
// overlay (as qcow2), and MAC addresses, the NVRAM path and the description
// are removed. A file disk without an overlay is an error: the clone never
// shares a writable image with its base. Other devices are kept as they are.
func CloneDomainXML(baseXML string, opts CloneOptions) (string, error) {
	if opts.Name == "" {
		return "", fmt.Errorf("clone name is required")
	}

	dom, err := ParseDomain(baseXML)
	if err != nil {
		return "", err
	}

	disks := FileDisks(dom)
	if len(disks) == 0 {
		return "", fmt.Errorf("%s: %w", dom.Name, ErrNoDisk)
	}
	for _, d := range disks {
		if opts.Overlays[d.Path] == "" {
			return "", fmt.Errorf("no overlay for disk %s of %s", d.Path, dom.Name)
		}
	}

	dom.Name = opts.Name
	dom.UUID = opts.UUID
	dom.ID = nil
	dom.Description = ""

	for i := range dom.Devices.Disks {
		d := &dom.Devices.Disks[i]
		if d.Device != "" && d.Device != "disk" {
			continue
		}
		overlay, ok := opts.Overlays[diskFile(d)]
		if !ok {
			continue
		}
		d.Source.File.File = overlay
		d.BackingStore = nil
		if d.Driver == nil {
			d.Driver = &libvirtxml.DomainDiskDriver{Name: "qemu"}
		}
		d.Driver.Type = "qcow2"
	}

	for i := range dom.Devices.Interfaces {
		dom.Devices.Interfaces[i].MAC = nil
	}

	if dom.OS != nil && dom.OS.NVRam != nil {
		dom.OS.NVRam.NVRam = ""
		dom.OS.NVRam.Source = nil
	}

	xml, err := dom.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}
	return xml, nil
}

func diskFile(d *libvirtxml.DomainDisk) string {
	if d.Source == nil || d.Source.File == nil {
		return ""
	}
	return d.Source.File.File
}
