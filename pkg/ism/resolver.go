// Copyright 2025 Certen Protocol
//
// ChainResolver is the production ModuleResolver: it fetches a module's
// type and configuration via the destination chain's Adapter.CallView, the
// same view-call path RecipientISM and Delivered use, and fetches
// checkpoints from whichever checkpoint.Store each validator published to.

package ism

import (
	"context"
	"fmt"

	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/checkpoint"
	"github.com/certen/interchain-agent/pkg/domain"
	"github.com/certen/interchain-agent/pkg/merkle"
	"github.com/certen/interchain-agent/pkg/message"
)

// ModuleDecoder turns the raw return data of a module's configuration view
// calls into a ModuleInfo. One decoder exists per chain family (EVM ABI
// encoding differs from Sealevel/Starknet/Aleo account layouts), selected by
// the adapter's protocol.
type ModuleDecoder interface {
	DecodeModuleType(data []byte) (ModuleType, error)
	DecodeMultisigConfig(data []byte) (validators []message.Address32, threshold uint8, err error)
	DecodeWeightedMultisigConfig(data []byte) (weights map[message.Address32]uint32, thresholdWeight uint32, err error)
	DecodeAggregationConfig(data []byte) (subModules []message.Address32, err error)
	DecodeRoutingConfig(data []byte, destination uint32) (route message.Address32, hasRoute bool, err error)
}

// CheckpointSource resolves the checkpoint.Store a validator publishes its
// signed checkpoints to (one syncer per validator, keyed by its announced
// storage location).
type CheckpointSource interface {
	StoreForValidator(ctx context.Context, validator message.Address32) (*checkpoint.Store, error)
}

// OriginTreeSource answers inclusion proofs for a dispatched message
// against the origin mailbox's merkle tree, independent of any
// validator's attestation. *OriginTrees is the production implementation.
type OriginTreeSource interface {
	ReceiptFor(ctx context.Context, origin domain.Domain, id message.Hash) (*merkle.Receipt, bool, error)
}

// ChainResolver implements ModuleResolver against a live chain.Adapter.
type ChainResolver struct {
	adapter     chain.Adapter
	decoder     ModuleDecoder
	checkpoints CheckpointSource
	trees       OriginTreeSource
}

// NewChainResolver constructs a resolver bound to one destination chain.
// trees may be nil when the destination only ever uses message-id
// multisig modules (which need no merkle proof); a merkle-root multisig
// build against a nil trees fails closed with a clear error instead of
// panicking.
func NewChainResolver(adapter chain.Adapter, decoder ModuleDecoder, checkpoints CheckpointSource, trees OriginTreeSource) *ChainResolver {
	return &ChainResolver{adapter: adapter, decoder: decoder, checkpoints: checkpoints, trees: trees}
}

var (
	selectorModuleType          = []byte{0x64, 0x65, 0xe6, 0x9f} // moduleType()
	selectorValidatorsThreshold = []byte{0x2e, 0x0e, 0xd2, 0x34} // validatorsAndThreshold(bytes)
	selectorWeightedConfig      = []byte{0x56, 0xb4, 0xae, 0xc7} // validatorsWeightsAndThreshold(bytes)
	selectorSubModules          = []byte{0x88, 0xdd, 0xdb, 0x1f} // modules(bytes)
	selectorRoute               = []byte{0x15, 0xce, 0x45, 0xa2} // route(bytes)
)

// ResolveModule fetches and decodes moduleAddress's on-chain configuration.
func (r *ChainResolver) ResolveModule(ctx context.Context, moduleAddress message.Address32) (ModuleInfo, error) {
	typeData, err := r.adapter.CallView(ctx, moduleAddress, selectorModuleType)
	if err != nil {
		return ModuleInfo{}, fmt.Errorf("ism: fetch module type for %s: %w", moduleAddress, err)
	}
	moduleType, err := r.decoder.DecodeModuleType(typeData)
	if err != nil {
		return ModuleInfo{}, fmt.Errorf("ism: decode module type for %s: %w", moduleAddress, err)
	}

	info := ModuleInfo{Type: moduleType}

	switch moduleType {
	case ModuleMessageIdMultisig, ModuleMerkleRootMultisig:
		data, err := r.adapter.CallView(ctx, moduleAddress, selectorValidatorsThreshold)
		if err != nil {
			return ModuleInfo{}, fmt.Errorf("ism: fetch multisig config for %s: %w", moduleAddress, err)
		}
		info.Validators, info.Threshold, err = r.decoder.DecodeMultisigConfig(data)
		if err != nil {
			return ModuleInfo{}, fmt.Errorf("ism: decode multisig config for %s: %w", moduleAddress, err)
		}

	case ModuleWeightedMessageIdMultisig, ModuleWeightedMerkleRootMultisig:
		data, err := r.adapter.CallView(ctx, moduleAddress, selectorWeightedConfig)
		if err != nil {
			return ModuleInfo{}, fmt.Errorf("ism: fetch weighted multisig config for %s: %w", moduleAddress, err)
		}
		info.ValidatorWeights, info.ThresholdWeight, err = r.decoder.DecodeWeightedMultisigConfig(data)
		if err != nil {
			return ModuleInfo{}, fmt.Errorf("ism: decode weighted multisig config for %s: %w", moduleAddress, err)
		}
		for v := range info.ValidatorWeights {
			info.Validators = append(info.Validators, v)
		}

	case ModuleAggregation:
		data, err := r.adapter.CallView(ctx, moduleAddress, selectorSubModules)
		if err != nil {
			return ModuleInfo{}, fmt.Errorf("ism: fetch aggregation sub-modules for %s: %w", moduleAddress, err)
		}
		info.SubModules, err = r.decoder.DecodeAggregationConfig(data)
		if err != nil {
			return ModuleInfo{}, fmt.Errorf("ism: decode aggregation config for %s: %w", moduleAddress, err)
		}

	case ModuleRouting, ModuleFallbackRouting:
		// Route resolution happens lazily via ResolveRoute, since a full
		// route table is unbounded in size and most resolutions only need
		// one entry.

	case ModuleNullNoop, ModuleCcipRead, ModuleNativeBridge:
		// no further configuration needed beyond the type itself
	}

	return info, nil
}

// ResolveRoute answers a routing module's active branch for destination via
// the route(bytes) view call encoding destination as a 32-byte big-endian
// domain id.
func (r *ChainResolver) ResolveRoute(ctx context.Context, moduleAddress message.Address32, destination uint32) (message.Address32, bool, error) {
	var destArg [32]byte
	destArg[28] = byte(destination >> 24)
	destArg[29] = byte(destination >> 16)
	destArg[30] = byte(destination >> 8)
	destArg[31] = byte(destination)
	data := append(append([]byte{}, selectorRoute...), destArg[:]...)

	out, err := r.adapter.CallView(ctx, moduleAddress, data)
	if err != nil {
		return message.Address32{}, false, fmt.Errorf("ism: fetch route for destination %d: %w", destination, err)
	}
	route, ok, err := r.decoder.DecodeRoutingConfig(out, destination)
	if err != nil {
		return message.Address32{}, false, fmt.Errorf("ism: decode route for destination %d: %w", destination, err)
	}
	return route, ok, nil
}

// LatestCheckpoint fetches the most recent checkpoint a validator has
// published, via the Store its CheckpointSource returns for it.
func (r *ChainResolver) LatestCheckpoint(ctx context.Context, validator message.Address32) (checkpoint.Entry, bool, error) {
	store, err := r.checkpoints.StoreForValidator(ctx, validator)
	if err != nil {
		return checkpoint.Entry{}, false, fmt.Errorf("ism: resolve checkpoint store for validator %s: %w", validator, err)
	}
	if store == nil {
		return checkpoint.Entry{}, false, nil
	}
	index, err := store.LatestIndex(ctx)
	if err != nil {
		if err == checkpoint.ErrNoCheckpoints {
			return checkpoint.Entry{}, false, nil
		}
		return checkpoint.Entry{}, false, fmt.Errorf("ism: latest index for validator %s: %w", validator, err)
	}
	entry, err := store.Get(ctx, index)
	if err != nil {
		return checkpoint.Entry{}, false, fmt.Errorf("ism: fetch checkpoint %d for validator %s: %w", index, validator, err)
	}
	return entry, true, nil
}

// MerkleProof answers a merkle-root multisig build's inclusion check from
// r.trees, the relayer's own mirror of the origin mailbox's tree.
func (r *ChainResolver) MerkleProof(ctx context.Context, msg message.Message, ckpt message.Checkpoint) (*merkle.Receipt, bool, error) {
	if r.trees == nil {
		return nil, false, fmt.Errorf("ism: no origin tree source configured for merkle-root multisig verification")
	}
	return r.trees.ReceiptFor(ctx, msg.Origin, msg.ID())
}
