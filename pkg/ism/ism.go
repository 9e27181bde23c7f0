// Copyright 2025 Certen Protocol
//
// Interchain Security Module metadata builder. Resolves a recipient's
// configured ISM, recurses through composite module types up to a fixed
// depth, and assembles the metadata bytes a destination Mailbox's
// process() call needs to satisfy that ISM.
//
// Module resolution mirrors the chain-adapter protocol -> factory
// registry in pkg/chain: each ModuleType maps to a Builder, looked up in
// a table rather than switched on a type hierarchy, so adding a module
// type never touches the recursion logic in Build.

package ism

import (
	"context"
	"fmt"

	"github.com/certen/interchain-agent/pkg/checkpoint"
	"github.com/certen/interchain-agent/pkg/merkle"
	"github.com/certen/interchain-agent/pkg/message"
)

// ModuleType identifies the ISM variant at one node of the (possibly
// nested) module tree a recipient configures.
type ModuleType string

const (
	ModuleNullNoop                  ModuleType = "null_noop"
	ModuleMessageIdMultisig          ModuleType = "message_id_multisig"
	ModuleMerkleRootMultisig         ModuleType = "merkle_root_multisig"
	ModuleWeightedMessageIdMultisig  ModuleType = "weighted_message_id_multisig"
	ModuleWeightedMerkleRootMultisig ModuleType = "weighted_merkle_root_multisig"
	ModuleAggregation                ModuleType = "aggregation"
	ModuleRouting                    ModuleType = "routing"
	ModuleFallbackRouting            ModuleType = "fallback_routing"
	ModuleCcipRead                   ModuleType = "ccip_read"
	ModuleNativeBridge                ModuleType = "native_bridge"
)

// MaxDepth bounds how many nested module levels Build will recurse
// through, preventing a misconfigured or adversarial routing/aggregation
// tree from recursing unboundedly.
const MaxDepth = 8

// ErrMaxDepthExceeded is returned when a module tree nests deeper than
// MaxDepth.
var ErrMaxDepthExceeded = fmt.Errorf("ism: module tree exceeds max depth %d", MaxDepth)

// ErrCycleDetected is returned when a routing or aggregation module
// revisits a module address already seen earlier in the same resolution.
var ErrCycleDetected = fmt.Errorf("ism: cycle detected in module tree")

// ModuleInfo is what a chain's ISM-type view call returns: the module's
// kind and whatever address/threshold data the kind requires.
type ModuleInfo struct {
	Type ModuleType

	// Validator sets, for the multisig family.
	Validators         []message.Address32
	Threshold          uint8
	ValidatorWeights   map[message.Address32]uint32
	ThresholdWeight    uint32

	// Sub-modules, for aggregation (all must pass) and routing (exactly
	// one selected by destination domain) kinds.
	SubModules     []message.Address32
	RouteTable     map[uint32]message.Address32
	FallbackModule *message.Address32

	// Native-bridge kind: which bridge family verifies inclusion.
	NativeBridgeName string
}

// ModuleResolver fetches a module's ModuleInfo and the checkpoint(s)
// needed to verify it, via the chain this ISM is deployed on.
type ModuleResolver interface {
	ResolveModule(ctx context.Context, moduleAddress message.Address32) (ModuleInfo, error)
	LatestCheckpoint(ctx context.Context, validator message.Address32) (checkpoint.Entry, bool, error)

	// ResolveRoute answers a routing module's active branch for
	// destination, fetched lazily since a route table can be unbounded in
	// size and most resolutions need exactly one entry.
	ResolveRoute(ctx context.Context, moduleAddress message.Address32, destination uint32) (route message.Address32, hasRoute bool, err error)

	// MerkleProof returns a portable inclusion receipt binding msg's id to
	// a leaf of the origin mailbox's merkle tree, anchored at ckpt.Root.
	// ok is false when the origin tree hasn't produced a proof for this
	// message yet (e.g. it lags the checkpoint's index), which callers
	// should treat as "not provable yet" rather than an error.
	MerkleProof(ctx context.Context, msg message.Message, ckpt message.Checkpoint) (receipt *merkle.Receipt, ok bool, err error)
}

// Metadata is the built metadata bytes plus a human-readable trail of
// which modules contributed to it, useful for diagnosing a
// MetadataRejected failure after the fact.
type Metadata struct {
	Bytes []byte
	Trail []ModuleType
}

// Builder assembles ISM metadata for a message given its recipient's
// configured module address.
type Builder struct {
	resolver ModuleResolver
}

// NewBuilder constructs a Builder backed by a ModuleResolver.
func NewBuilder(resolver ModuleResolver) *Builder {
	return &Builder{resolver: resolver}
}

// Build resolves the module tree rooted at ismAddress and returns
// metadata satisfying it for msg's delivery. msg.Destination is used to
// pick the active branch of a routing module.
func (b *Builder) Build(ctx context.Context, msg message.Message, ismAddress message.Address32) (Metadata, error) {
	visited := make(map[message.Address32]struct{})
	return b.build(ctx, msg, ismAddress, 0, visited)
}

func (b *Builder) build(ctx context.Context, msg message.Message, ismAddress message.Address32, depth int, visited map[message.Address32]struct{}) (Metadata, error) {
	if depth > MaxDepth {
		return Metadata{}, ErrMaxDepthExceeded
	}
	if _, ok := visited[ismAddress]; ok {
		return Metadata{}, ErrCycleDetected
	}
	visited[ismAddress] = struct{}{}

	info, err := b.resolver.ResolveModule(ctx, ismAddress)
	if err != nil {
		return Metadata{}, fmt.Errorf("ism: resolve module %s: %w", ismAddress, err)
	}

	switch info.Type {
	case ModuleNullNoop:
		return Metadata{Bytes: nil, Trail: []ModuleType{info.Type}}, nil

	case ModuleMessageIdMultisig, ModuleWeightedMessageIdMultisig:
		return b.buildMultisig(ctx, msg, info, false)

	case ModuleMerkleRootMultisig, ModuleWeightedMerkleRootMultisig:
		return b.buildMultisig(ctx, msg, info, true)

	case ModuleAggregation:
		return b.buildAggregation(ctx, msg, info, depth, visited)

	case ModuleRouting, ModuleFallbackRouting:
		return b.buildRouting(ctx, msg, info, depth, visited, ismAddress)

	case ModuleCcipRead:
		return Metadata{}, fmt.Errorf("ism: ccip-read module requires an off-chain oracle round trip, not supported by this builder")

	case ModuleNativeBridge:
		return Metadata{Bytes: nil, Trail: []ModuleType{info.Type}}, fmt.Errorf("ism: native bridge %q verification is proven on-chain by the bridge itself; no relayer metadata needed", info.NativeBridgeName)

	default:
		return Metadata{}, fmt.Errorf("ism: unknown module type %q", info.Type)
	}
}

// buildAggregation requires every sub-module to independently produce
// metadata; AggregationIsm on-chain then requires all of them to verify.
func (b *Builder) buildAggregation(ctx context.Context, msg message.Message, info ModuleInfo, depth int, visited map[message.Address32]struct{}) (Metadata, error) {
	var trail []ModuleType
	var bundles [][]byte
	for _, sub := range info.SubModules {
		subVisited := copyVisited(visited)
		m, err := b.build(ctx, msg, sub, depth+1, subVisited)
		if err != nil {
			return Metadata{}, fmt.Errorf("ism: aggregation sub-module %s: %w", sub, err)
		}
		trail = append(trail, m.Trail...)
		bundles = append(bundles, m.Bytes)
	}
	return Metadata{Bytes: encodeAggregationMetadata(bundles), Trail: append([]ModuleType{info.Type}, trail...)}, nil
}

// buildRouting picks the branch for msg.Destination, falling back to
// FallbackModule (FallbackRoutingIsm) when no route matches.
func (b *Builder) buildRouting(ctx context.Context, msg message.Message, info ModuleInfo, depth int, visited map[message.Address32]struct{}, ismAddress message.Address32) (Metadata, error) {
	route, ok, err := b.resolver.ResolveRoute(ctx, ismAddress, uint32(msg.Destination))
	if err != nil {
		return Metadata{}, fmt.Errorf("ism: resolve route for destination %d: %w", msg.Destination, err)
	}
	if !ok {
		if info.FallbackModule == nil {
			return Metadata{}, fmt.Errorf("ism: routing module has no route for destination %d and no fallback", msg.Destination)
		}
		route = *info.FallbackModule
	}
	return b.build(ctx, msg, route, depth+1, visited)
}

func copyVisited(v map[message.Address32]struct{}) map[message.Address32]struct{} {
	out := make(map[message.Address32]struct{}, len(v))
	for k := range v {
		out[k] = struct{}{}
	}
	return out
}
