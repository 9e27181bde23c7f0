// Copyright 2025 Certen Protocol
//
// Append-only insertion log over the Tree type in this package, keyed by
// the dense 0-based index a Mailbox contract's merkle tree insertion
// events carry. A gap in that index is fatal — see
// pkg/agentd/errors.ErrSequenceGap — the caller is expected to refuse to
// advance its cursor rather than silently skip the missing index.

package merkle

import (
	"fmt"
	"sync"

	agentderrors "github.com/certen/interchain-agent/pkg/agentd/errors"
)

// InsertionLog accumulates message-id leaves in dense index order and
// rebuilds the Tree on demand. It is the merkle-side half of
// message.MerkleTreeInsertion: the indexer appends one leaf per insertion
// event it observes, and the ISM builder asks for proofs against whatever
// root was current at a given index.
type InsertionLog struct {
	mu     sync.RWMutex
	leaves [][]byte // index i holds the leaf for MerkleTreeInsertion{Index: i}
	dirty  bool
	tree   *Tree
}

// NewInsertionLog returns an empty log.
func NewInsertionLog() *InsertionLog {
	return &InsertionLog{}
}

// Append adds the leaf for the next dense index. index must equal the
// current leaf count exactly; any other value is a sequence gap or
// regression and is rejected so the caller can classify it as fatal.
func (l *InsertionLog) Append(index uint32, messageID [32]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if int(index) != len(l.leaves) {
		return fmt.Errorf("%w: got index %d, expected %d", agentderrors.ErrSequenceGap, index, len(l.leaves))
	}
	leaf := make([]byte, 32)
	copy(leaf, messageID[:])
	l.leaves = append(l.leaves, leaf)
	l.dirty = true
	return nil
}

// Count returns the number of leaves appended so far.
func (l *InsertionLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.leaves)
}

// Root returns the current merkle root, rebuilding the tree if leaves
// have been appended since the last call.
func (l *InsertionLog) Root() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rebuildLocked(); err != nil {
		return nil, err
	}
	if l.tree == nil {
		return nil, ErrEmptyTree
	}
	return l.tree.Root(), nil
}

// ProofAt returns an inclusion proof for the leaf at index, against the
// tree's current root. Callers that need a proof against a historical
// root (the root as of some earlier checkpoint) must keep their own
// snapshot — this log only ever serves the latest root, matching the
// on-chain tree it mirrors.
func (l *InsertionLog) ProofAt(index uint32) (*InclusionProof, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rebuildLocked(); err != nil {
		return nil, err
	}
	if l.tree == nil {
		return nil, ErrEmptyTree
	}
	return l.tree.GenerateProof(int(index))
}

// ReceiptAt converts the inclusion proof for the leaf at index into the
// portable Receipt format, so it can travel with ISM metadata and be
// re-verified without trusting this log. Proof.Path entries already carry
// the same left/right sibling convention as ReceiptEntry.Right.
func (l *InsertionLog) ReceiptAt(index uint32) (*Receipt, error) {
	proof, err := l.ProofAt(index)
	if err != nil {
		return nil, err
	}
	entries := make([]ReceiptEntry, len(proof.Path))
	for i, node := range proof.Path {
		entries[i] = ReceiptEntry{Hash: node.Hash, Right: node.Position == Right}
	}
	return &Receipt{
		Start:   proof.LeafHash,
		Anchor:  proof.MerkleRoot,
		Entries: entries,
	}, nil
}

func (l *InsertionLog) rebuildLocked() error {
	if !l.dirty && l.tree != nil {
		return nil
	}
	if len(l.leaves) == 0 {
		return nil
	}
	tree, err := BuildTree(l.leaves)
	if err != nil {
		return err
	}
	l.tree = tree
	l.dirty = false
	return nil
}
