// Copyright 2025 Certen Protocol
//
// EVMDecoder implements ModuleDecoder for EVM-deployed ISMs, unpacking
// view-call return data by hand the same way pkg/message packs its
// canonical encoding: fixed-width big-endian fields, ABI head/tail layout
// for dynamic arrays. go-ethereum's abi package handles simple fixed-shape
// returns (address[], uint8) well but its tuple[] unpacking requires a
// concrete Go struct type generated per call site, which would mean one
// throwaway type per ISM variant; hand-decoding the (address,uint96)[]
// weighted-validator layout once here is the smaller, clearer surface.

package ism

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/interchain-agent/pkg/message"
)

// moduleTypeOrdinal mirrors IInterchainSecurityModule's Types enum.
var moduleTypeOrdinal = map[uint8]ModuleType{
	0: ModuleNullNoop,
	1: ModuleRouting,
	2: ModuleAggregation,
	3: ModuleMerkleRootMultisig,
	4: ModuleMessageIdMultisig,
	5: ModuleCcipRead,
	6: ModuleNativeBridge,
	7: ModuleWeightedMerkleRootMultisig,
	8: ModuleWeightedMessageIdMultisig,
	9: ModuleFallbackRouting,
}

// EVMDecoder decodes the ABI-encoded return values of moduleType(),
// validatorsAndThreshold(bytes), validatorsWeightsAndThreshold(bytes),
// modules(bytes) and route(bytes).
type EVMDecoder struct{}

func (EVMDecoder) DecodeModuleType(data []byte) (ModuleType, error) {
	if len(data) < 32 {
		return "", fmt.Errorf("ism/evm: moduleType() return too short")
	}
	ordinal := data[31]
	mt, ok := moduleTypeOrdinal[ordinal]
	if !ok {
		return "", fmt.Errorf("ism/evm: unknown module type ordinal %d", ordinal)
	}
	return mt, nil
}

func (EVMDecoder) DecodeMultisigConfig(data []byte) ([]message.Address32, uint8, error) {
	addrsType, _ := abi.NewType("address[]", "", nil)
	thresholdType, _ := abi.NewType("uint8", "", nil)
	args := abi.Arguments{{Type: addrsType}, {Type: thresholdType}}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, 0, fmt.Errorf("ism/evm: unpack validatorsAndThreshold: %w", err)
	}
	addrs, ok := values[0].([]common.Address)
	if !ok {
		return nil, 0, fmt.Errorf("ism/evm: unexpected validators type")
	}
	threshold, ok := values[1].(uint8)
	if !ok {
		return nil, 0, fmt.Errorf("ism/evm: unexpected threshold type")
	}

	out := make([]message.Address32, len(addrs))
	for i, a := range addrs {
		var arr [20]byte
		copy(arr[:], a[:])
		out[i] = message.AddressFromEVM(arr)
	}
	return out, threshold, nil
}

// DecodeWeightedMultisigConfig decodes a (ValidatorInfo[], uint96) return
// where ValidatorInfo is (address addr, uint96 weight), by hand: ABI head
// contains the array's byte offset then the threshold weight; the array's
// tail is [length][addr,weight]*length, each element a fixed-size 2-word
// tuple since neither field is dynamic.
func (EVMDecoder) DecodeWeightedMultisigConfig(data []byte) (map[message.Address32]uint32, uint32, error) {
	if len(data) < 64 {
		return nil, 0, fmt.Errorf("ism/evm: weighted config return too short")
	}
	arrOffset := new(big.Int).SetBytes(data[0:32]).Uint64()
	thresholdWeight := new(big.Int).SetBytes(data[32:64])

	if uint64(len(data)) < arrOffset+32 {
		return nil, 0, fmt.Errorf("ism/evm: weighted config array offset out of range")
	}
	length := new(big.Int).SetBytes(data[arrOffset : arrOffset+32]).Uint64()

	weights := make(map[message.Address32]uint32, length)
	elemStart := arrOffset + 32
	const elemSize = 64 // two words per ValidatorInfo: address, weight
	for i := uint64(0); i < length; i++ {
		off := elemStart + i*elemSize
		if uint64(len(data)) < off+elemSize {
			return nil, 0, fmt.Errorf("ism/evm: weighted config truncated at element %d", i)
		}
		var addr [20]byte
		copy(addr[:], data[off+12:off+32])
		weight := new(big.Int).SetBytes(data[off+32 : off+64])
		weights[message.AddressFromEVM(addr)] = uint32(weight.Uint64())
	}

	return weights, uint32(thresholdWeight.Uint64()), nil
}

func (EVMDecoder) DecodeAggregationConfig(data []byte) ([]message.Address32, error) {
	addrsType, _ := abi.NewType("address[]", "", nil)
	args := abi.Arguments{{Type: addrsType}}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("ism/evm: unpack modules: %w", err)
	}
	addrs, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("ism/evm: unexpected modules type")
	}
	out := make([]message.Address32, len(addrs))
	for i, a := range addrs {
		var arr [20]byte
		copy(arr[:], a[:])
		out[i] = message.AddressFromEVM(arr)
	}
	return out, nil
}

func (EVMDecoder) DecodeRoutingConfig(data []byte, _ uint32) (message.Address32, bool, error) {
	addrType, _ := abi.NewType("address", "", nil)
	args := abi.Arguments{{Type: addrType}}
	values, err := args.Unpack(data)
	if err != nil {
		return message.Address32{}, false, fmt.Errorf("ism/evm: unpack route: %w", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return message.Address32{}, false, fmt.Errorf("ism/evm: unexpected route type")
	}
	if addr == (common.Address{}) {
		return message.Address32{}, false, nil
	}
	var arr [20]byte
	copy(arr[:], addr[:])
	return message.AddressFromEVM(arr), true, nil
}
