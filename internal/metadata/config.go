// Package metadata persists small per-VM settings as a flat config string.
//
// A config string is a comma-separated list of key=value pairs:
//
//	user=fedora,base=fedora-base
//
// It is stored either inline in the libvirt domain description
// (DescriptionStore) or in a sidecar file (FileStore).
package metadata

import (
	"fmt"
	"regexp"
	"strings"
)

// Well-known keys.
const (
	KeyUser   = "user"    // SSH user for the VM
	KeyBase   = "base"    // VM this one was cloned from
	KeyIsBase = "is-base" // "true" on a VM that has been cloned from
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

type entry struct {
	key   string
	value string
}

// Config is an ordered set of key=value pairs with unique keys. The zero
// value is an empty config.
type Config struct {
	entries []entry
}

// Parse parses a config string. Empty segments are ignored and a value may
// contain '=' since pairs are split on the first one.
func Parse(s string) (Config, error) {
	var c Config
	for _, seg := range strings.Split(s, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		key, value, ok := strings.Cut(seg, "=")
		if !ok {
			return Config{}, fmt.Errorf("invalid config entry %q: missing '='", seg)
		}
		if err := ValidateKey(key); err != nil {
			return Config{}, err
		}
		// Later duplicates win, keeping the first position.
		c.set(key, value)
	}
	return c, nil
}

// String serializes the config as k1=v1,k2=v2 in insertion order.
func (c Config) String() string {
	parts := make([]string, len(c.entries))
	for i, e := range c.entries {
		parts[i] = e.key + "=" + e.value
	}
	return strings.Join(parts, ",")
}

// Get returns the value for key.
func (c Config) Get(key string) (string, bool) {
	for _, e := range c.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing key in place or appends a new key.
func (c *Config) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateValue(value); err != nil {
		return err
	}
	c.set(key, value)
	return nil
}

// Delete removes key and reports whether it was present.
func (c *Config) Delete(key string) bool {
	for i, e := range c.entries {
		if e.key == key {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Config) set(key, value string) {
	for i := range c.entries {
		if c.entries[i].key == key {
			c.entries[i].value = value
			return
		}
	}
	c.entries = append(c.entries, entry{key: key, value: value})
}

// ValidateKey checks that key is usable in a config string.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid config key %q: must match %s", key, keyPattern.String())
	}
	return nil
}

// ValidateValue checks that value can be stored without breaking the
// encoding: no ',' separators, no ']' which ends an inline marker, and no
// line breaks.
func ValidateValue(value string) error {
	if strings.ContainsAny(value, ",]\n\r") {
		return fmt.Errorf("invalid config value %q: must not contain ',', ']' or newlines", value)
	}
	return nil
}
