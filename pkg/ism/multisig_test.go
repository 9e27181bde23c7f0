// Copyright 2025 Certen Protocol

package ism

import (
	"crypto/ed25519"
	"testing"

	"github.com/certen/interchain-agent/pkg/crypto/bls"
	"github.com/certen/interchain-agent/pkg/message"
)

func testCheckpoint() message.Checkpoint {
	return message.Checkpoint{
		MerkleTreeAddress: message.Address32{0x01},
		MailboxDomain:     1,
		Root:              message.Hash{0x02},
		Index:             7,
	}
}

func TestVerifyBLSCheckpointSignature(t *testing.T) {
	sk, pk, err := bls.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}

	ckpt := testCheckpoint()
	digest := ckpt.SigningDigest()
	sig := sk.SignWithDomain(digest[:], bls.DomainAttestation)

	ok, err := VerifyBLSCheckpointSignature(pk.Bytes(), ckpt, sig.Bytes())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected a valid BLS signature to verify")
	}

	other := testCheckpoint()
	other.Index = 8
	ok, err = VerifyBLSCheckpointSignature(pk.Bytes(), other, sig.Bytes())
	if err != nil {
		t.Fatalf("verify against a different checkpoint: %v", err)
	}
	if ok {
		t.Fatal("signature over one checkpoint must not verify against a different checkpoint")
	}
}

func TestVerifyBLSCheckpointSignature_RejectsMalformedPublicKey(t *testing.T) {
	if _, err := VerifyBLSCheckpointSignature([]byte{0x01, 0x02}, testCheckpoint(), []byte{0x01}); err == nil {
		t.Fatal("expected an error for a malformed public key")
	}
}

func TestVerifyEd25519CheckpointSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	ckpt := testCheckpoint()
	digest := ckpt.SigningDigest()
	sig := ed25519.Sign(priv, digest[:])

	if !VerifyEd25519CheckpointSignature(pub, ckpt, sig) {
		t.Fatal("expected a valid Ed25519 signature to verify")
	}

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xff
	if VerifyEd25519CheckpointSignature(pub, ckpt, tampered) {
		t.Fatal("expected a tampered signature to fail verification")
	}
}
