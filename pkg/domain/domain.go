// Copyright 2025 Certen Protocol
//
// Domain catalog. A Domain is the 32-bit chain identifier used throughout
// dispatch, checkpoint and metadata records. The catalog itself is loaded
// once at process start from a static YAML table and passed down
// explicitly — there is no package-level singleton.

package domain

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Domain is a 32-bit interchain chain identifier.
type Domain uint32

// Protocol names recognized by the chain adapter registry.
const (
	ProtocolEVM      = "evm"
	ProtocolCosmos   = "cosmos"
	ProtocolSealevel = "sealevel"
	ProtocolStarknet = "starknet"
	ProtocolAleo     = "aleo"
)

// Entry is one row of the domain catalog.
type Entry struct {
	Domain   Domain `yaml:"domain"`
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"`
}

// Catalog is an immutable map from Domain to Entry, built once at process
// start. Unknown domains are allowed to appear in messages observed on
// chain — Lookup reports ok=false for them rather than erroring, and
// callers decide whether an unknown domain is merely flagged or fatal.
type Catalog struct {
	byDomain map[Domain]Entry
	byName   map[string]Entry
}

// NewCatalog builds a Catalog from a list of entries. Duplicate domains are
// rejected since the catalog is meant to be an immutable, validated table.
func NewCatalog(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		byDomain: make(map[Domain]Entry, len(entries)),
		byName:   make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		if _, exists := c.byDomain[e.Domain]; exists {
			return nil, fmt.Errorf("domain catalog: duplicate domain %d (%s)", e.Domain, e.Name)
		}
		c.byDomain[e.Domain] = e
		c.byName[e.Name] = e
	}
	return c, nil
}

// LoadCatalogYAML parses a YAML document of the form:
//
//	- domain: 1
//	  name: ethereum
//	  protocol: evm
func LoadCatalogYAML(data []byte) (*Catalog, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("domain catalog: %w", err)
	}
	return NewCatalog(entries)
}

// Lookup returns the catalog entry for a domain, and ok=false if the
// domain is unknown — known chains allow unrecognized remote domains to
// appear in dispatch records, they just get flagged rather than rejected.
func (c *Catalog) Lookup(d Domain) (Entry, bool) {
	e, ok := c.byDomain[d]
	return e, ok
}

// LookupByName returns the catalog entry for a configured chain name.
func (c *Catalog) LookupByName(name string) (Entry, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// Protocol returns the protocol string for a domain, defaulting to
// ProtocolEVM when the domain is unknown (most networks onboarded so far
// are EVM-shaped).
func (c *Catalog) Protocol(d Domain) string {
	if e, ok := c.byDomain[d]; ok {
		return e.Protocol
	}
	return ProtocolEVM
}
