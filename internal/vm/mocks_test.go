package vm

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vmw/internal/metadata"
	"github.com/jbweber/vmw/internal/poll"
)

// Domain states (from libvirt VIR_DOMAIN_* constants)
const (
	domainStateRunning = 1
	domainStatePaused      = 3
	domainStateShutdown    = 4
	domainStateShutoff     = 5
	domainStatePMSuspended = 7
)

// mockLibvirtClient is a mock implementation of the libvirtClient interface for testing.
//
// By default it behaves like a small hypervisor: domains live in a map,
// DomainCreate makes them running, DomainShutdown and DomainDestroy make them
// shut off, DomainDefineXML adds a stopped domain.
type mockLibvirtClient struct {
	mu sync.Mutex

	states map[string]int32
	xml    map[string]string
	addrs  map[string][]libvirt.DomainInterface

	// Configurable behavior
	domainCreateFunc             func(dom libvirt.Domain) error
	domainGetStateFunc           func(dom libvirt.Domain, flags uint32) (int32, int32, error)
	domainShutdownFunc           func(dom libvirt.Domain) error
	domainDestroyFunc            func(dom libvirt.Domain) error
	domainDefineXMLFunc          func(xml string) (libvirt.Domain, error)
	domainUndefineFlagsFunc      func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error
	domainInterfaceAddressesFunc func(dom libvirt.Domain, source uint32) ([]libvirt.DomainInterface, error)

	// Call tracking
	domainLookupByNameCalls       []string
	domainDefineXMLCalls          []string
	domainCreateCalls             []string
	domainResumeCalls             []string
	domainPmWakeupCalls           []string
	domainGetStateCalls           []string
	domainShutdownCalls           []string
	domainDestroyCalls            []string
	domainUndefineFlagsCalls      []libvirt.DomainUndefineFlagsValues
	domainInterfaceAddressesCalls []uint32
	connectListAllDomainsCalls    []libvirt.ConnectListAllDomainsFlags
}

// newMockLibvirtClient creates a new mock libvirt client with no domains.
func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		states: make(map[string]int32),
		xml:    make(map[string]string),
		addrs:  make(map[string][]libvirt.DomainInterface),
	}
}

// addDomain registers a domain in the given state.
func (m *mockLibvirtClient) addDomain(name string, state int32, xml string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[name] = state
	m.xml[name] = xml
}

func (m *mockLibvirtClient) setState(name string, state int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[name] = state
}

func (m *mockLibvirtClient) stateOf(name string) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[name]
}

func (m *mockLibvirtClient) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[name]
	return ok
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainLookupByNameCalls = append(m.domainLookupByNameCalls, name)
	if _, ok := m.states[name]; !ok {
		return libvirt.Domain{}, fmt.Errorf("Domain not found: no domain with matching name '%s'", name)
	}
	return libvirt.Domain{Name: name}, nil
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	fn := m.domainDefineXMLFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(xml)
	}

	name := extractName(xml)
	if name == "" {
		return libvirt.Domain{}, fmt.Errorf("XML error: missing name")
	}
	m.addDomain(name, domainStateShutoff, xml)
	return libvirt.Domain{Name: name}, nil
}

func (m *mockLibvirtClient) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	xml, ok := m.xml[dom.Name]
	if !ok {
		return "", fmt.Errorf("Domain not found: %s", dom.Name)
	}
	return xml, nil
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom.Name)
	fn := m.domainCreateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(dom)
	}
	m.setState(dom.Name, domainStateRunning)
	return nil
}

func (m *mockLibvirtClient) DomainResume(dom libvirt.Domain) error {
	m.mu.Lock()
	m.domainResumeCalls = append(m.domainResumeCalls, dom.Name)
	m.mu.Unlock()

	m.setState(dom.Name, domainStateRunning)
	return nil
}

func (m *mockLibvirtClient) DomainPmWakeup(dom libvirt.Domain, flags uint32) error {
	m.mu.Lock()
	m.domainPmWakeupCalls = append(m.domainPmWakeupCalls, dom.Name)
	m.mu.Unlock()

	m.setState(dom.Name, domainStateRunning)
	return nil
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	m.domainGetStateCalls = append(m.domainGetStateCalls, dom.Name)
	fn := m.domainGetStateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(dom, flags)
	}
	return m.stateOf(dom.Name), 0, nil
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	m.domainShutdownCalls = append(m.domainShutdownCalls, dom.Name)
	fn := m.domainShutdownFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(dom)
	}
	m.setState(dom.Name, domainStateShutoff)
	return nil
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom.Name)
	fn := m.domainDestroyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(dom)
	}
	m.setState(dom.Name, domainStateShutoff)
	return nil
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	m.domainUndefineFlagsCalls = append(m.domainUndefineFlagsCalls, flags)
	fn := m.domainUndefineFlagsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(dom, flags)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, dom.Name)
	delete(m.xml, dom.Name)
	return nil
}

func (m *mockLibvirtClient) DomainInterfaceAddresses(dom libvirt.Domain, source uint32, flags uint32) ([]libvirt.DomainInterface, error) {
	m.mu.Lock()
	m.domainInterfaceAddressesCalls = append(m.domainInterfaceAddressesCalls, source)
	fn := m.domainInterfaceAddressesFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(dom, source)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addrs[dom.Name], nil
}

func (m *mockLibvirtClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectListAllDomainsCalls = append(m.connectListAllDomainsCalls, flags)

	activeOnly := flags&libvirt.ConnectListDomainsInactive == 0
	var domains []libvirt.Domain
	for name, state := range m.states {
		if activeOnly && state == domainStateShutoff {
			continue
		}
		domains = append(domains, libvirt.Domain{Name: name})
	}
	// Unordered like libvirt; callers sort.
	return domains, uint32(len(domains)), nil
}

// extractName returns the text of the first <name> element.
func extractName(xml string) string {
	const open, close = "<name>", "</name>"
	start := strings.Index(xml, open)
	if start < 0 {
		return ""
	}
	rest := xml[start+len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// mockDiskManager is a mock implementation of the diskManager interface for testing.
type mockDiskManager struct {
	mu sync.Mutex

	// Configurable behavior
	createOverlayFunc func(base, baseFormat, path string) error
	deleteFunc        func(path string) error

	// Call tracking
	formatCalls        []string
	createOverlayCalls [][3]string // base, format, path
	deleteCalls        []string
}

func (m *mockDiskManager) Format(_ context.Context, path, declared string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formatCalls = append(m.formatCalls, path)
	if declared != "" {
		return declared
	}
	return "qcow2"
}

func (m *mockDiskManager) CreateOverlay(_ context.Context, base, baseFormat, path string) error {
	m.mu.Lock()
	m.createOverlayCalls = append(m.createOverlayCalls, [3]string{base, baseFormat, path})
	fn := m.createOverlayFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(base, baseFormat, path)
	}
	return nil
}

func (m *mockDiskManager) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	m.deleteCalls = append(m.deleteCalls, path)
	fn := m.deleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(path)
	}
	return nil
}

// memStore is an in-memory metadata.Store.
type memStore struct {
	mu      sync.Mutex
	configs map[string]string

	saveErr     error
	saveErrFor  map[string]error // per-VM save failures
	removeCalls []string
}

func newMemStore() *memStore {
	return &memStore{configs: make(map[string]string)}
}

func (s *memStore) Load(name string) (metadata.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return metadata.Parse(s.configs[name])
}

func (s *memStore) Save(name string, cfg metadata.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if err := s.saveErrFor[name]; err != nil {
		return err
	}
	s.configs[name] = cfg.String()
	return nil
}

func (s *memStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls = append(s.removeCalls, name)
	delete(s.configs, name)
	return nil
}

func (s *memStore) get(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[name]
}

// sleepRecorder replaces real sleeps in the poller.
type sleepRecorder struct {
	mu    sync.Mutex
	count int

	// onSleep runs on every sleep, e.g. to change domain state mid-poll.
	onSleep func(n int)
}

func (r *sleepRecorder) sleep(_ context.Context, _ time.Duration) error {
	r.mu.Lock()
	r.count++
	n := r.count
	fn := r.onSleep
	r.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return nil
}

// mockConn satisfies net.Conn for the SSH probe.
type mockConn struct {
	net.Conn
}

func (mockConn) Close() error { return nil }

// newTestManager returns a Manager over mocks with instant polling.
func newTestManager(lv *mockLibvirtClient, store *memStore, disks *mockDiskManager) (*Manager, *sleepRecorder) {
	m := NewManager(lv, store, disks, Options{SSHPort: 22, StopTimeout: 10 * time.Second})
	rec := &sleepRecorder{}
	m.poller = &poll.Poller{Sleep: rec.sleep}
	m.dial = func(context.Context, string, string) (net.Conn, error) {
		return mockConn{}, nil
	}
	return m, rec
}

// testDomainXML returns a domain definition with one file disk per path, a
// CD-ROM and a network interface.
func testDomainXML(name string, disks ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<domain type='kvm'>\n  <name>%s</name>\n", name)
	b.WriteString("  <memory unit='KiB'>1048576</memory>\n")
	b.WriteString("  <os><type arch='x86_64'>hvm</type></os>\n")
	b.WriteString("  <devices>\n")
	for i, path := range disks {
		fmt.Fprintf(&b, "    <disk type='file' device='disk'><driver name='qemu' type='qcow2'/><source file='%s'/><target dev='vd%c' bus='virtio'/></disk>\n", path, 'a'+i)
	}
	b.WriteString("    <disk type='file' device='cdrom'><source file='/isos/seed.iso'/><target dev='sda' bus='sata'/></disk>\n")
	b.WriteString("    <interface type='network'><mac address='52:54:00:aa:bb:cc'/><source network='default'/></interface>\n")
	b.WriteString("  </devices>\n</domain>\n")
	return b.String()
}

// iface returns a single-address interface.
func iface(typ int32, addr string) libvirt.DomainInterface {
	return libvirt.DomainInterface{
		Name:  "vnet0",
		Addrs: []libvirt.DomainIPAddr{{Type: typ, Addr: addr, Prefix: 24}},
	}
}
