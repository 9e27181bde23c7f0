// Copyright 2025 Certen Protocol
//
// OriginTrees mirrors each origin chain's dispatch merkle tree from
// MerkleTreeInsertion events, the same way cmd/validator's InsertionLog
// does for checkpoint signing, except keyed per origin domain so a single
// relayer process can serve proofs for every chain it relays from.

package ism

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/interchain-agent/pkg/domain"
	"github.com/certen/interchain-agent/pkg/merkle"
	"github.com/certen/interchain-agent/pkg/message"
)

// OriginTrees implements the merkle-proof half of ModuleResolver, fed by
// the relayer's own origin-chain indexers rather than trusting a
// validator's attestation of inclusion.
type OriginTrees struct {
	mu    sync.RWMutex
	logs  map[domain.Domain]*merkle.InsertionLog
	index map[domain.Domain]map[message.Hash]uint32
}

// NewOriginTrees returns an empty tree set.
func NewOriginTrees() *OriginTrees {
	return &OriginTrees{
		logs:  make(map[domain.Domain]*merkle.InsertionLog),
		index: make(map[domain.Domain]map[message.Hash]uint32),
	}
}

// Observe appends one MerkleTreeInsertion event from origin's mailbox.
// Like merkle.InsertionLog.Append, it fails closed on an index gap.
func (t *OriginTrees) Observe(origin domain.Domain, insertion message.MerkleTreeInsertion) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	log, ok := t.logs[origin]
	if !ok {
		log = merkle.NewInsertionLog()
		t.logs[origin] = log
		t.index[origin] = make(map[message.Hash]uint32)
	}
	if err := log.Append(insertion.Index, insertion.MessageID); err != nil {
		return fmt.Errorf("ism: origin %d merkle tree: %w", origin, err)
	}
	t.index[origin][insertion.MessageID] = insertion.Index
	return nil
}

// ReceiptFor returns the inclusion receipt for id in origin's tree, or
// ok=false if origin's tree hasn't seen id yet.
func (t *OriginTrees) ReceiptFor(ctx context.Context, origin domain.Domain, id message.Hash) (*merkle.Receipt, bool, error) {
	t.mu.RLock()
	log, hasLog := t.logs[origin]
	var leafIndex uint32
	var hasLeaf bool
	if hasLog {
		leafIndex, hasLeaf = t.index[origin][id]
	}
	t.mu.RUnlock()

	if !hasLog || !hasLeaf {
		return nil, false, nil
	}
	receipt, err := log.ReceiptAt(leafIndex)
	if err != nil {
		return nil, false, fmt.Errorf("ism: receipt for message %s at origin %d: %w", id, origin, err)
	}
	return receipt, true, nil
}
