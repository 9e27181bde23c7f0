// Copyright 2025 Certen Protocol

package bls

import (
	"path/filepath"
	"testing"
)

func TestKeyManager_GenerateNewKeySavesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator.key")
	km := NewKeyManager(path)

	if err := km.GenerateNewKey(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if km.GetPrivateKey() == nil || km.GetPublicKey() == nil {
		t.Fatal("expected both keys to be populated after generation")
	}

	reloaded := NewKeyManager(path)
	if err := reloaded.LoadKey(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if reloaded.GetPublicKeyHex() != km.GetPublicKeyHex() {
		t.Fatalf("reloaded public key %q != original %q", reloaded.GetPublicKeyHex(), km.GetPublicKeyHex())
	}
}

func TestKeyManager_LoadOrGenerateKeyGeneratesWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator.key")
	km := NewKeyManager(path)

	if err := km.LoadOrGenerateKey(); err != nil {
		t.Fatalf("load or generate: %v", err)
	}
	if km.GetPrivateKey() == nil {
		t.Fatal("expected a key to be generated")
	}

	second := NewKeyManager(path)
	if err := second.LoadOrGenerateKey(); err != nil {
		t.Fatalf("load or generate (second): %v", err)
	}
	if second.GetPublicKeyHex() != km.GetPublicKeyHex() {
		t.Fatal("expected the second call to load the key persisted by the first, not generate a new one")
	}
}

func TestKeyManager_GenerateFromValidatorIDIsDeterministic(t *testing.T) {
	a := NewKeyManager("")
	b := NewKeyManager("")

	if err := a.GenerateFromValidatorID("validator-1", "ethereum"); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	if err := b.GenerateFromValidatorID("validator-1", "ethereum"); err != nil {
		t.Fatalf("generate b: %v", err)
	}
	if a.GetPublicKeyHex() != b.GetPublicKeyHex() {
		t.Fatal("expected the same validator/chain id pair to derive the same key")
	}

	c := NewKeyManager("")
	if err := c.GenerateFromValidatorID("validator-2", "ethereum"); err != nil {
		t.Fatalf("generate c: %v", err)
	}
	if c.GetPublicKeyHex() == a.GetPublicKeyHex() {
		t.Fatal("expected a different validator id to derive a different key")
	}
}

func TestKeyManager_SignRequiresLoadedKey(t *testing.T) {
	km := NewKeyManager("")
	if _, err := km.Sign([]byte("hello")); err == nil {
		t.Fatal("expected an error signing with no private key loaded")
	}
}

func TestKeyManager_SignWithLoadedKeyVerifies(t *testing.T) {
	km := NewKeyManager("")
	if err := km.GenerateNewKey(); err != nil {
		t.Fatalf("generate: %v", err)
	}

	msg := []byte("dispatch checkpoint")
	sig, err := km.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !km.GetPublicKey().Verify(sig, msg) {
		t.Fatal("expected the signature to verify against the manager's own public key")
	}
}

func TestKeyManager_GetAddressDerivesTwentyBytes(t *testing.T) {
	km := NewKeyManager("")
	if err := km.GenerateNewKey(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := km.GetAddress()
	var zero [20]byte
	if addr == zero {
		t.Fatal("expected a non-zero derived address for a generated key")
	}
}

func TestKeyManager_GetPublicKeyBytesNilBeforeGeneration(t *testing.T) {
	km := NewKeyManager("")
	if got := km.GetPublicKeyBytes(); got != nil {
		t.Fatalf("expected nil public key bytes before any key is loaded, got %x", got)
	}
	if got := km.GetPublicKeyHex(); got != "" {
		t.Fatalf("expected an empty public key hex before any key is loaded, got %q", got)
	}
}
