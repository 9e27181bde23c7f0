// Copyright 2025 Certen Protocol

package domain

import "testing"

func TestNewCatalogRejectsDuplicateDomain(t *testing.T) {
	entries := []Entry{
		{Domain: 1, Name: "ethereum", Protocol: ProtocolEVM},
		{Domain: 1, Name: "ethereum-fork", Protocol: ProtocolEVM},
	}
	if _, err := NewCatalog(entries); err == nil {
		t.Fatal("expected an error for duplicate domain ids")
	}
}

func TestCatalogLookup(t *testing.T) {
	entries := []Entry{
		{Domain: 1, Name: "ethereum", Protocol: ProtocolEVM},
		{Domain: 2, Name: "neutron", Protocol: ProtocolCosmos},
	}
	cat, err := NewCatalog(entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, ok := cat.Lookup(Domain(2))
	if !ok {
		t.Fatal("expected domain 2 to resolve")
	}
	if e.Name != "neutron" || e.Protocol != ProtocolCosmos {
		t.Fatalf("unexpected entry: %+v", e)
	}

	if _, ok := cat.Lookup(Domain(999)); ok {
		t.Fatal("expected unknown domain to report ok=false")
	}

	byName, ok := cat.LookupByName("ethereum")
	if !ok || byName.Domain != Domain(1) {
		t.Fatalf("LookupByName failed: %+v ok=%v", byName, ok)
	}
}

func TestCatalogProtocolDefaultsToEVM(t *testing.T) {
	cat, err := NewCatalog([]Entry{{Domain: 1, Name: "ethereum", Protocol: ProtocolEVM}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cat.Protocol(Domain(1)); got != ProtocolEVM {
		t.Fatalf("Protocol(1) = %s, want %s", got, ProtocolEVM)
	}
	if got := cat.Protocol(Domain(404)); got != ProtocolEVM {
		t.Fatalf("Protocol(unknown) = %s, want default %s", got, ProtocolEVM)
	}
}

func TestLoadCatalogYAML(t *testing.T) {
	data := []byte(`
- domain: 1
  name: ethereum
  protocol: evm
- domain: 2
  name: neutron
  protocol: cosmos
`)
	cat, err := LoadCatalogYAML(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cat.Lookup(Domain(2)); !ok {
		t.Fatal("expected domain 2 to be parsed from YAML")
	}
}

func TestLoadCatalogYAMLRejectsMalformed(t *testing.T) {
	if _, err := LoadCatalogYAML([]byte("not: [valid, yaml: structure")); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}
