package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"
)

// libvirtClient defines the libvirt operations needed for VM management.
// This wraps operations from *libvirt.Libvirt to allow for testing.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	// DomainLookupByName looks up a domain by name
	DomainLookupByName(name string) (libvirt.Domain, error)

	// DomainDefineXML defines a domain from XML
	DomainDefineXML(xml string) (libvirt.Domain, error)

	// DomainGetXMLDesc returns the domain XML
	DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)

	// DomainCreate starts a domain
	DomainCreate(dom libvirt.Domain) error

	// DomainResume resumes a paused domain
	DomainResume(dom libvirt.Domain) error

	// DomainPmWakeup wakes a domain from guest power-management suspend
	DomainPmWakeup(dom libvirt.Domain, flags uint32) error

	// DomainGetState gets the state of a domain
	DomainGetState(dom libvirt.Domain, flags uint32) (state int32, reason int32, err error)

	// DomainShutdown gracefully shuts down a domain
	DomainShutdown(dom libvirt.Domain) error

	// DomainDestroy force-stops a domain
	DomainDestroy(dom libvirt.Domain) error

	// DomainUndefineFlags undefines a domain with flags (e.g., NVRAM cleanup)
	DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error

	// DomainInterfaceAddresses returns guest addresses from the given source
	DomainInterfaceAddresses(dom libvirt.Domain, source uint32, flags uint32) ([]libvirt.DomainInterface, error)

	// ConnectListAllDomains lists domains matching flags
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
}

// diskManager defines the disk image operations needed for VM management.
//
// In production, this is satisfied by *disk.Manager.
// In tests, this is satisfied by mock implementations.
type diskManager interface {
	// Format returns the format of an image, preferring the declared one
	Format(ctx context.Context, path, declared string) string

	// CreateOverlay creates a qcow2 overlay backed by base
	CreateOverlay(ctx context.Context, base, baseFormat, path string) error

	// Delete removes a disk image
	Delete(ctx context.Context, path string) error
}
