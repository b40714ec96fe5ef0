package metadata

import (
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is a mock implementation of descriptionClient that keeps
// descriptions in memory.
type mockLibvirtClient struct {
	mu sync.Mutex

	descriptions map[string]string
	active       map[string]bool

	// Optional overrides.
	domainLookupByNameFunc func(name string) (libvirt.Domain, error)
	domainGetMetadataFunc  func(dom libvirt.Domain) (string, error)
	domainSetMetadataFunc  func(dom libvirt.Domain, desc string, flags libvirt.DomainModificationImpact) error

	// Call tracking.
	setMetadataCalls []setMetadataCall
}

type setMetadataCall struct {
	Name  string
	Typ   int32
	Desc  string
	Flags libvirt.DomainModificationImpact
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		descriptions: make(map[string]string),
		active:       make(map[string]bool),
	}
}

// addDomain registers a domain with an optional description.
func (m *mockLibvirtClient) addDomain(name, desc string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if desc != "" {
		m.descriptions[name] = desc
	}
	m.active[name] = running
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	if m.domainLookupByNameFunc != nil {
		return m.domainLookupByNameFunc(name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[name]; !ok {
		return libvirt.Domain{}, fmt.Errorf("domain not found: %s", name)
	}
	return libvirt.Domain{Name: name}, nil
}

func (m *mockLibvirtClient) DomainIsActive(dom libvirt.Domain) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[dom.Name] {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
	if m.domainGetMetadataFunc != nil {
		return m.domainGetMetadataFunc(dom)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	desc, ok := m.descriptions[dom.Name]
	if !ok {
		return "", fmt.Errorf("metadata not found: Requested metadata element is not present")
	}
	return desc, nil
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
	desc := ""
	if len(metadata) > 0 {
		desc = metadata[0]
	}

	m.mu.Lock()
	m.setMetadataCalls = append(m.setMetadataCalls, setMetadataCall{Name: dom.Name, Typ: typ, Desc: desc, Flags: flags})
	m.mu.Unlock()

	if m.domainSetMetadataFunc != nil {
		return m.domainSetMetadataFunc(dom, desc, flags)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptions[dom.Name] = desc
	return nil
}
