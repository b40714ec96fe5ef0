// Package libvirt connects to the local libvirt daemon and inspects and
// rewrites domain XML.
//
// Connection Management:
//
// Connections go over the daemon's unix socket. The system daemon listens on
// /var/run/libvirt/libvirt-sock; the per-user session daemon listens under
// $XDG_RUNTIME_DIR/libvirt.
//
//	client, err := libvirt.Connect(settings.SocketPath(), settings.URI(), 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Domain XML:
//
// ParseDomain, FileDisks and PrimaryDisk read the disks of an existing domain.
// CloneDomainXML derives the definition of an overlay clone from a base
// domain: each disk source is swapped for its overlay and identity that must
// be unique per domain (UUID, MAC addresses, NVRAM path) is dropped so libvirt
// assigns fresh values on define.
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces. Consumers (internal/vm,
// internal/metadata, internal/disk) declare the operations they need and
// *libvirt.Libvirt satisfies them implicitly.
package libvirt
