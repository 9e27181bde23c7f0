// Copyright 2025 Certen Protocol

package ism

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/interchain-agent/pkg/message"
)

func TestEVMDecoder_DecodeModuleType(t *testing.T) {
	dec := EVMDecoder{}

	data := make([]byte, 32)
	data[31] = 4 // ModuleMessageIdMultisig ordinal
	mt, err := dec.DecodeModuleType(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mt != ModuleMessageIdMultisig {
		t.Fatalf("got %s, want %s", mt, ModuleMessageIdMultisig)
	}
}

func TestEVMDecoder_DecodeModuleTypeRejectsUnknownOrdinal(t *testing.T) {
	dec := EVMDecoder{}
	data := make([]byte, 32)
	data[31] = 99
	if _, err := dec.DecodeModuleType(data); err == nil {
		t.Fatal("expected an error for an unrecognized ordinal")
	}
}

func TestEVMDecoder_DecodeModuleTypeRejectsShortInput(t *testing.T) {
	dec := EVMDecoder{}
	if _, err := dec.DecodeModuleType([]byte{0x01}); err == nil {
		t.Fatal("expected an error for input shorter than one word")
	}
}

func TestEVMDecoder_DecodeMultisigConfig(t *testing.T) {
	dec := EVMDecoder{}

	addrsType, _ := abi.NewType("address[]", "", nil)
	thresholdType, _ := abi.NewType("uint8", "", nil)
	args := abi.Arguments{{Type: addrsType}, {Type: thresholdType}}

	validators := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
	packed, err := args.Pack(validators, uint8(2))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	addrs, threshold, err := dec.DecodeMultisigConfig(packed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if threshold != 2 {
		t.Fatalf("threshold = %d, want 2", threshold)
	}
	if len(addrs) != 2 {
		t.Fatalf("len(addrs) = %d, want 2", len(addrs))
	}
	want := message.AddressFromEVM([20]byte(validators[0]))
	if addrs[0] != want {
		t.Fatalf("addrs[0] = %x, want %x", addrs[0], want)
	}
}

func TestEVMDecoder_DecodeWeightedMultisigConfig(t *testing.T) {
	dec := EVMDecoder{}

	var addr [20]byte
	addr[19] = 0xaa

	// head: array offset (64) then threshold weight
	head := make([]byte, 64)
	head[31] = 64
	binaryPutUint32At(head, 32+28, 100)

	// tail: array length (1), then one (address,weight) element
	tail := make([]byte, 32+64)
	tail[31] = 1
	copy(tail[32+12:32+32], addr[:])
	binaryPutUint32At(tail, 32+32+28, 7)

	data := append(head, tail...)

	weights, thresholdWeight, err := dec.DecodeWeightedMultisigConfig(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if thresholdWeight != 100 {
		t.Fatalf("thresholdWeight = %d, want 100", thresholdWeight)
	}
	want := message.AddressFromEVM(addr)
	if weights[want] != 7 {
		t.Fatalf("weights[%x] = %d, want 7", want, weights[want])
	}
}

func TestEVMDecoder_DecodeRoutingConfigNoRoute(t *testing.T) {
	dec := EVMDecoder{}
	addrType, _ := abi.NewType("address", "", nil)
	args := abi.Arguments{{Type: addrType}}
	packed, err := args.Pack(common.Address{})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	_, ok, err := dec.DecodeRoutingConfig(packed, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for the zero address sentinel")
	}
}

func binaryPutUint32At(buf []byte, offset int, v uint32) {
	buf[offset] = byte(v >> 24)
	buf[offset+1] = byte(v >> 16)
	buf[offset+2] = byte(v >> 8)
	buf[offset+3] = byte(v)
}
