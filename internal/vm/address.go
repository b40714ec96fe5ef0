package vm

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/digitalocean/go-libvirt"
	log "github.com/sirupsen/logrus"
)

// Address families in libvirt DomainIPAddr.Type.
const (
	ipAddrTypeIPv4 int32 = 0
	ipAddrTypeIPv6 int32 = 1
)

// addressSources are queried in order: DHCP leases of libvirt-managed
// networks, then the host ARP table for bridged guests.
var addressSources = []libvirt.DomainInterfaceAddressesSource{
	libvirt.DomainInterfaceAddressesSrcLease,
	libvirt.DomainInterfaceAddressesSrcArp,
}

// IPAddress returns a guest address for a VM. IPv4 addresses are preferred
// over IPv6; loopback and link-local addresses are skipped.
func (m *Manager) IPAddress(_ context.Context, name string) (string, error) {
	dom, err := m.lookup(name)
	if err != nil {
		return "", err
	}
	return m.ipAddress(dom)
}

func (m *Manager) ipAddress(dom libvirt.Domain) (string, error) {
	var lastErr error
	for _, src := range addressSources {
		ifaces, err := m.client.DomainInterfaceAddresses(dom, uint32(src), 0)
		if err != nil {
			log.Debugf("address source %d for %s: %v", src, dom.Name, err)
			lastErr = err
			continue
		}
		if ip := pickAddress(ifaces); ip != "" {
			return ip, nil
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w for %s: %v", ErrNoIPAddress, dom.Name, lastErr)
	}
	return "", fmt.Errorf("%w for %s", ErrNoIPAddress, dom.Name)
}

func pickAddress(ifaces []libvirt.DomainInterface) string {
	var v6 string
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			ip := net.ParseIP(addr.Addr)
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			switch addr.Type {
			case ipAddrTypeIPv4:
				return ip.String()
			case ipAddrTypeIPv6:
				if v6 == "" {
					v6 = ip.String()
				}
			}
		}
	}
	return v6
}

// WaitForAddress starts a VM if needed and waits until libvirt reports an
// address for it. Each phase is bounded by timeout.
func (m *Manager) WaitForAddress(ctx context.Context, name string, timeout time.Duration) (string, error) {
	dom, err := m.lookup(name)
	if err != nil {
		return "", err
	}
	if err := m.ensureRunning(ctx, dom, timeout); err != nil {
		return "", err
	}

	var ip string
	err = m.poller.Until(ctx, timeout, func(context.Context) (bool, error) {
		addr, err := m.ipAddress(dom)
		if err != nil {
			log.Debugf("waiting for address of %s: %v", dom.Name, err)
			return false, nil
		}
		ip = addr
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed waiting for address of %s: %w", name, err)
	}
	return ip, nil
}

// EnsureReachable starts a VM if needed, then waits until it has an address
// and accepts TCP connections on the SSH port. Each phase is bounded by
// timeout. It returns the address.
func (m *Manager) EnsureReachable(ctx context.Context, name string, timeout time.Duration) (string, error) {
	dom, err := m.lookup(name)
	if err != nil {
		return "", err
	}
	if err := m.ensureRunning(ctx, dom, timeout); err != nil {
		return "", err
	}

	port := strconv.Itoa(m.opts.SSHPort)
	var ip string
	err = m.poller.Until(ctx, timeout, func(ctx context.Context) (bool, error) {
		addr, err := m.ipAddress(dom)
		if err != nil {
			log.Debugf("waiting for address of %s: %v", dom.Name, err)
			return false, nil
		}

		conn, err := m.dial(ctx, "tcp", net.JoinHostPort(addr, port))
		if err != nil {
			log.Debugf("waiting for ssh on %s: %v", addr, err)
			return false, nil
		}
		_ = conn.Close()

		ip = addr
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed waiting for %s to become reachable: %w", name, err)
	}

	log.Debugf("%s is reachable at %s", name, ip)
	return ip, nil
}
