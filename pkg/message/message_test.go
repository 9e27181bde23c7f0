// Copyright 2025 Certen Protocol

package message

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/certen/interchain-agent/pkg/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := Message{
		Version:     3,
		Nonce:       42,
		Origin:      domain.Domain(1),
		Sender:      Address32{0x01, 0x02},
		Destination: domain.Domain(2),
		Recipient:   Address32{0x03, 0x04},
		Body:        []byte("hello interchain"),
	}

	encoded := m.Encode()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Version != m.Version || decoded.Nonce != m.Nonce || decoded.Origin != m.Origin ||
		decoded.Destination != m.Destination || decoded.Sender != m.Sender || decoded.Recipient != m.Recipient {
		t.Fatalf("decoded message does not match original: %+v vs %+v", decoded, m)
	}
	if !bytes.Equal(decoded.Body, m.Body) {
		t.Fatalf("decoded body %q != original %q", decoded.Body, m.Body)
	}
}

func TestDecodeRejectsShortInput(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected an error decoding input shorter than the header")
	}
}

func TestIDStableForSameOriginNonce(t *testing.T) {
	a := Message{Version: 1, Nonce: 7, Origin: domain.Domain(1), Destination: domain.Domain(2), Body: []byte("a")}
	b := a
	b.Body = append([]byte(nil), a.Body...)

	if a.ID() != b.ID() {
		t.Fatal("identical messages must produce identical ids")
	}

	c := a
	c.Nonce = 8
	if a.ID() == c.ID() {
		t.Fatal("changing nonce must change the message id")
	}
}

func TestHashIsZero(t *testing.T) {
	var h Hash
	if !h.IsZero() {
		t.Fatal("zero-value Hash must report IsZero")
	}
	h[0] = 0x01
	if h.IsZero() {
		t.Fatal("non-zero Hash must not report IsZero")
	}
}

func TestAddress32FromHex(t *testing.T) {
	got, err := Address32FromHex("0x1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Address32{}
	want[30] = 0x12
	want[31] = 0x34
	if got != want {
		t.Fatalf("short hex not left-padded correctly: got %x want %x", got, want)
	}

	if _, err := Address32FromHex("zz"); err == nil {
		t.Fatal("expected an error for non-hex input")
	}

	long := make([]byte, 66)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := Address32FromHex(string(long)); err == nil {
		t.Fatal("expected an error for input longer than 32 bytes")
	}
}

func TestSigningDigestDiffersWithMessageID(t *testing.T) {
	ckpt := Checkpoint{
		MerkleTreeAddress: Address32{0xaa},
		MailboxDomain:     domain.Domain(1),
		Root:              Hash{0xbb},
		Index:             5,
	}

	plain := ckpt.SigningDigest()
	bound := ckpt.SigningDigestWithMessageID(Hash{0xcc})

	if plain == bound {
		t.Fatal("message-id-bound digest must differ from the plain checkpoint digest")
	}

	again := ckpt.SigningDigestWithMessageID(Hash{0xcc})
	if bound != again {
		t.Fatal("signing digest must be deterministic for the same inputs")
	}
}

func TestSumGasPayments(t *testing.T) {
	payments := []GasPayment{
		{Payment: big.NewInt(100), GasAmount: big.NewInt(21000)},
		{Payment: big.NewInt(50), GasAmount: big.NewInt(5000)},
		{Payment: nil, GasAmount: nil},
	}

	totalPayment, totalGas := SumGasPayments(payments)
	if totalPayment.Int64() != 150 {
		t.Fatalf("total payment = %s, want 150", totalPayment)
	}
	if totalGas.Int64() != 26000 {
		t.Fatalf("total gas = %s, want 26000", totalGas)
	}
}
