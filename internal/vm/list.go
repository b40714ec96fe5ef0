package vm

import (
	"context"
	"fmt"
	"sort"

	"github.com/digitalocean/go-libvirt"
	log "github.com/sirupsen/logrus"

	"github.com/jbweber/vmw/internal/metadata"
	"github.com/jbweber/vmw/internal/status"
)

// Info represents information about a VM.
type Info struct {
	Name   string       `json:"name" yaml:"name"`
	State  status.State `json:"state" yaml:"state"`
	IP     string       `json:"ip,omitempty" yaml:"ip,omitempty"`
	User   string       `json:"user,omitempty" yaml:"user,omitempty"`
	Base   string       `json:"base,omitempty" yaml:"base,omitempty"`
	IsBase bool         `json:"isBase" yaml:"isBase"`
}

// List lists all VMs (both running and stopped), sorted by name.
//
// Addresses are looked up for running VMs only and left empty when libvirt
// has none. VMs whose state cannot be read are skipped with a warning.
func (m *Manager) List(_ context.Context) ([]Info, error) {
	domains, err := m.listDomains()
	if err != nil {
		return nil, err
	}

	vms := make([]Info, 0, len(domains))
	for _, dom := range domains {
		info, err := m.info(dom)
		if err != nil {
			log.Warnf("failed to get info for %s: %v", dom.Name, err)
			continue
		}
		vms = append(vms, info)
	}

	return vms, nil
}

// Get returns the details of one VM.
func (m *Manager) Get(_ context.Context, name string) (Info, error) {
	dom, err := m.lookup(name)
	if err != nil {
		return Info{}, err
	}
	return m.info(dom)
}

// info gets the details of a single domain.
func (m *Manager) info(dom libvirt.Domain) (Info, error) {
	st, err := m.state(dom)
	if err != nil {
		return Info{}, err
	}

	info := Info{Name: dom.Name, State: st}

	cfg, err := m.store.Load(dom.Name)
	if err != nil {
		log.Debugf("failed to read config of %s: %v", dom.Name, err)
	} else {
		info.User, _ = cfg.Get(metadata.KeyUser)
		info.Base, _ = cfg.Get(metadata.KeyBase)
		isBase, _ := cfg.Get(metadata.KeyIsBase)
		info.IsBase = isBase == "true"
	}

	if status.IsRunning(st) {
		if ip, err := m.ipAddress(dom); err == nil {
			info.IP = ip
		}
	}

	return info, nil
}

// listDomains returns all domains, active and inactive, sorted by name.
func (m *Manager) listDomains() ([]libvirt.Domain, error) {
	flags := libvirt.ConnectListDomainsActive | libvirt.ConnectListDomainsInactive
	domains, _, err := m.client.ConnectListAllDomains(1, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	sort.Slice(domains, func(i, j int) bool {
		return domains[i].Name < domains[j].Name
	})
	return domains, nil
}
