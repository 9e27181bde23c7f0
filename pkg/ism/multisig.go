// Copyright 2025 Certen Protocol

package ism

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/certen/interchain-agent/pkg/checkpoint"
	"github.com/certen/interchain-agent/pkg/crypto/bls"
	"github.com/certen/interchain-agent/pkg/merkle"
	"github.com/certen/interchain-agent/pkg/message"
)

// signedCheckpoint pairs a validator with the checkpoint it last signed,
// as gathered during multisig metadata construction.
type signedCheckpoint struct {
	validator message.Address32
	entry     checkpoint.Entry
}

// buildMultisig gathers signed checkpoints from a validator set, clusters
// them by (root, index) to isolate any validator whose view of the origin
// chain has diverged, checks the threshold against the largest agreeing
// cluster (simple count for *Multisig kinds, summed weight for Weighted*
// kinds), and packs the metadata bytes: merkle tree address, root and
// big-endian index followed by the signatures (merkle-root variant), or
// merkle tree address, index and message id followed by the signatures
// (message-id variant). The merkle inclusion proof is checked but not
// packed into the metadata.
func (b *Builder) buildMultisig(ctx context.Context, msg message.Message, info ModuleInfo, merkleVariant bool) (Metadata, error) {
	var gathered []signedCheckpoint

	for _, v := range info.Validators {
		entry, ok, err := b.resolver.LatestCheckpoint(ctx, v)
		if err != nil {
			return Metadata{}, fmt.Errorf("ism: checkpoint for validator %s: %w", v, err)
		}
		if !ok {
			continue
		}
		gathered = append(gathered, signedCheckpoint{validator: v, entry: entry})
	}

	weighted := info.ValidatorWeights != nil
	selected, err := selectQuorum(gathered, info, weighted)
	if err != nil {
		return Metadata{}, err
	}

	if merkleVariant {
		if err := b.verifyMerkleInclusion(ctx, msg, selected[0].entry.Checkpoint); err != nil {
			return Metadata{}, err
		}
	}

	var sigs [][]byte
	for _, g := range selected {
		sigs = append(sigs, g.entry.Signature)
	}

	var bytesOut []byte
	if merkleVariant {
		bytesOut = encodeMerkleRootMultisigMetadata(selected[0].entry.Checkpoint, sigs)
	} else {
		bytesOut = encodeMessageIdMultisigMetadata(msg.ID(), selected[0].entry.Checkpoint, sigs)
	}

	typ := ModuleMessageIdMultisig
	if merkleVariant {
		typ = ModuleMerkleRootMultisig
	}
	return Metadata{Bytes: bytesOut, Trail: []ModuleType{typ}}, nil
}

// multisigGroupKey clusters gathered checkpoints by the exact (root,
// index) pair they attest to. Validators that observed a different
// origin-chain state (a divergent or stale view) land in their own
// group and never get mixed with the quorum that agrees.
type multisigGroupKey struct {
	root  message.Hash
	index uint32
}

// selectQuorum groups gathered checkpoints by (root, index) and returns
// the largest group that still reaches the configured threshold,
// discarding every signature from the other groups. A validator whose
// checkpoint disagrees with the rest is silently dropped rather than
// rejecting the whole build — the on-chain ISM would reject a metadata
// blob mixing signatures over different roots anyway.
func selectQuorum(gathered []signedCheckpoint, info ModuleInfo, weighted bool) ([]signedCheckpoint, error) {
	groups := make(map[multisigGroupKey][]signedCheckpoint)
	var order []multisigGroupKey
	for _, g := range gathered {
		key := multisigGroupKey{root: g.entry.Checkpoint.Root, index: g.entry.Checkpoint.Index}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], g)
	}

	var best []signedCheckpoint
	var bestWeight uint32
	for _, key := range order {
		members := groups[key]
		if weighted {
			var w uint32
			for _, m := range members {
				w += info.ValidatorWeights[m.validator]
			}
			if w >= info.ThresholdWeight && w > bestWeight {
				best = members
				bestWeight = w
			}
			continue
		}
		if len(members) >= int(info.Threshold) && len(members) > len(best) {
			best = members
		}
	}

	if len(best) == 0 {
		if weighted {
			return nil, fmt.Errorf("ism: weighted multisig: no (root,index) group reaches threshold weight %d", info.ThresholdWeight)
		}
		return nil, fmt.Errorf("ism: multisig: no (root,index) group reaches threshold %d", info.Threshold)
	}
	return best, nil
}

// verifyMerkleInclusion checks that msg's id is included in the origin
// mailbox's merkle tree under the quorum checkpoint's root, per the
// merkle-root multisig ISM's step beyond just gathering signatures: a
// quorum of validators attesting to a root does not by itself prove this
// particular message was in the tree that produced it.
func (b *Builder) verifyMerkleInclusion(ctx context.Context, msg message.Message, ckpt message.Checkpoint) error {
	var receipt *merkle.Receipt
	var ok bool
	var err error
	receipt, ok, err = b.resolver.MerkleProof(ctx, msg, ckpt)
	if err != nil {
		return fmt.Errorf("ism: merkle inclusion proof for message %s: %w", msg.ID(), err)
	}
	if !ok {
		return fmt.Errorf("ism: merkle-root multisig: no inclusion proof available for message %s at checkpoint index %d", msg.ID(), ckpt.Index)
	}
	if err := receipt.Validate(); err != nil {
		return fmt.Errorf("ism: merkle-root multisig: inclusion proof failed validation: %w", err)
	}
	wantAnchor := hex.EncodeToString(ckpt.Root[:])
	if receipt.Anchor != wantAnchor {
		return fmt.Errorf("ism: merkle-root multisig: proof anchor %s does not match checkpoint root %s", receipt.Anchor, wantAnchor)
	}
	msgID := msg.ID()
	wantStart := hex.EncodeToString(msgID[:])
	if receipt.Start != wantStart {
		return fmt.Errorf("ism: merkle-root multisig: proof leaf %s does not match message id %s", receipt.Start, wantStart)
	}
	return nil
}

func encodeMessageIdMultisigMetadata(id message.Hash, ckpt message.Checkpoint, sigs [][]byte) []byte {
	out := make([]byte, 0, 32+4+32+len(sigs)*96)
	out = append(out, ckpt.MerkleTreeAddress[:]...)
	out = appendUint32(out, uint32(ckpt.Index))
	out = append(out, id[:]...)
	for _, s := range sigs {
		out = append(out, s...)
	}
	return out
}

func encodeMerkleRootMultisigMetadata(ckpt message.Checkpoint, sigs [][]byte) []byte {
	out := make([]byte, 0, 32+32+4+len(sigs)*96)
	out = append(out, ckpt.MerkleTreeAddress[:]...)
	out = append(out, ckpt.Root[:]...)
	out = appendUint32(out, uint32(ckpt.Index))
	for _, s := range sigs {
		out = append(out, s...)
	}
	return out
}

func encodeAggregationMetadata(bundles [][]byte) []byte {
	var out []byte
	out = appendUint32(out, uint32(len(bundles)))
	for _, b := range bundles {
		out = appendUint32(out, uint32(len(b)))
		out = append(out, b...)
	}
	return out
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// VerifyBLSCheckpointSignature checks a validator's BLS12-381 signature
// over a checkpoint's signing digest, for an EVM-style validator set.
func VerifyBLSCheckpointSignature(pubKey []byte, ckpt message.Checkpoint, sig []byte) (bool, error) {
	pk, err := bls.PublicKeyFromBytes(pubKey)
	if err != nil {
		return false, fmt.Errorf("ism: decode bls public key: %w", err)
	}
	s, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return false, fmt.Errorf("ism: decode bls signature: %w", err)
	}
	digest := ckpt.SigningDigest()
	return pk.VerifyWithDomain(s, digest[:], bls.DomainAttestation), nil
}

// VerifyEd25519CheckpointSignature checks a Sealevel-style validator's
// Ed25519 signature over a checkpoint's signing digest.
func VerifyEd25519CheckpointSignature(pubKey ed25519.PublicKey, ckpt message.Checkpoint, sig []byte) bool {
	digest := ckpt.SigningDigest()
	return ed25519.Verify(pubKey, digest[:], sig)
}
