package metadata

import (
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	log "github.com/sirupsen/logrus"
)

// Marker opens an inline config string inside a domain description. The
// config string runs up to the next ']'.
const Marker = "vmw:["

// Extract returns the config string embedded in desc.
func Extract(desc string) (string, bool) {
	start := strings.Index(desc, Marker)
	if start < 0 {
		return "", false
	}
	rest := desc[start+len(Marker):]
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// Embed returns desc with its inline config string replaced by cfg. Text
// around the marker is kept verbatim. Without a marker one is appended,
// separated by a space when desc has text.
func Embed(desc, cfg string) string {
	start := strings.Index(desc, Marker)
	if start >= 0 {
		rest := desc[start+len(Marker):]
		if end := strings.IndexByte(rest, ']'); end >= 0 {
			return desc[:start] + Marker + cfg + "]" + rest[end+1:]
		}
	}

	if desc == "" {
		return Marker + cfg + "]"
	}
	return desc + " " + Marker + cfg + "]"
}

// descriptionClient is the subset of *libvirt.Libvirt used by DescriptionStore.
type descriptionClient interface {
	DomainLookupByName(name string) (libvirt.Domain, error)
	DomainIsActive(dom libvirt.Domain) (int32, error)
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
}

// DescriptionStore keeps config strings inline in libvirt domain
// descriptions, so they live and die with the domain.
type DescriptionStore struct {
	client descriptionClient
}

// NewDescriptionStore returns a store backed by domain descriptions.
func NewDescriptionStore(client descriptionClient) *DescriptionStore {
	return &DescriptionStore{client: client}
}

// Load reads the config string from the VM's description. A description that
// cannot be read is treated as empty.
func (s *DescriptionStore) Load(name string) (Config, error) {
	dom, err := s.client.DomainLookupByName(name)
	if err != nil {
		return Config{}, fmt.Errorf("failed to lookup domain %s: %w", name, err)
	}

	raw, _ := Extract(s.description(dom))
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config of %s: %w", name, err)
	}
	return cfg, nil
}

// Save writes cfg into the VM's description, keeping any other text. The
// persistent definition is always updated, the live one too when the domain
// is running.
func (s *DescriptionStore) Save(name string, cfg Config) error {
	dom, err := s.client.DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("failed to lookup domain %s: %w", name, err)
	}

	desc := Embed(s.description(dom), cfg.String())

	flags := libvirt.DomainAffectConfig
	active, err := s.client.DomainIsActive(dom)
	if err != nil {
		return fmt.Errorf("failed to get state of domain %s: %w", name, err)
	}
	if active == 1 {
		flags |= libvirt.DomainAffectLive
	}

	err = s.client.DomainSetMetadata(
		dom,
		int32(libvirt.DomainMetadataDescription),
		libvirt.OptString{desc},
		nil,
		nil,
		flags,
	)
	if err != nil {
		return fmt.Errorf("failed to set description of domain %s: %w", name, err)
	}

	log.Debugf("saved config for %s in description: %s", name, cfg)
	return nil
}

// Remove is a no-op: the description is removed along with the domain.
func (s *DescriptionStore) Remove(string) error {
	return nil
}

func (s *DescriptionStore) description(dom libvirt.Domain) string {
	desc, err := s.client.DomainGetMetadata(
		dom,
		int32(libvirt.DomainMetadataDescription),
		nil,
		libvirt.DomainAffectConfig,
	)
	if err != nil {
		// libvirt reports a missing description as an error.
		log.Debugf("no description for domain %s: %v", dom.Name, err)
		return ""
	}
	return desc
}
