// Copyright 2025 Certen Protocol

package merkle

import (
	"errors"
	"testing"

	agentderrors "github.com/certen/interchain-agent/pkg/agentd/errors"
)

func TestInsertionLog_AppendSequential(t *testing.T) {
	log := NewInsertionLog()
	for i := uint32(0); i < 4; i++ {
		var id [32]byte
		id[0] = byte(i)
		if err := log.Append(i, id); err != nil {
			t.Fatalf("append index %d: %v", i, err)
		}
	}
	if log.Count() != 4 {
		t.Fatalf("Count() = %d, want 4", log.Count())
	}
}

func TestInsertionLog_AppendGapRejected(t *testing.T) {
	log := NewInsertionLog()
	if err := log.Append(0, [32]byte{0x01}); err != nil {
		t.Fatalf("append index 0: %v", err)
	}
	if err := log.Append(2, [32]byte{0x02}); !errors.Is(err, agentderrors.ErrSequenceGap) {
		t.Fatalf("expected ErrSequenceGap, got %v", err)
	}
}

func TestInsertionLog_AppendRegressionRejected(t *testing.T) {
	log := NewInsertionLog()
	if err := log.Append(0, [32]byte{0x01}); err != nil {
		t.Fatalf("append index 0: %v", err)
	}
	if err := log.Append(0, [32]byte{0x02}); !errors.Is(err, agentderrors.ErrSequenceGap) {
		t.Fatalf("expected ErrSequenceGap for a repeated index, got %v", err)
	}
}

func TestInsertionLog_RootEmptyIsError(t *testing.T) {
	log := NewInsertionLog()
	if _, err := log.Root(); err != ErrEmptyTree {
		t.Fatalf("expected ErrEmptyTree for an empty log, got %v", err)
	}
}

func TestInsertionLog_RootChangesAsLeavesAppend(t *testing.T) {
	log := NewInsertionLog()
	if err := log.Append(0, [32]byte{0x01}); err != nil {
		t.Fatalf("append: %v", err)
	}
	rootOne, err := log.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	if err := log.Append(1, [32]byte{0x02}); err != nil {
		t.Fatalf("append: %v", err)
	}
	rootTwo, err := log.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	if string(rootOne) == string(rootTwo) {
		t.Fatal("root must change after appending a new leaf")
	}
}

func TestInsertionLog_ProofAtVerifies(t *testing.T) {
	log := NewInsertionLog()
	ids := [][32]byte{{0x01}, {0x02}, {0x03}, {0x04}}
	for i, id := range ids {
		if err := log.Append(uint32(i), id); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	root, err := log.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	proof, err := log.ProofAt(2)
	if err != nil {
		t.Fatalf("proof at 2: %v", err)
	}

	leaf := make([]byte, 32)
	copy(leaf, ids[2][:])
	ok, err := VerifyProof(leaf, proof, root)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected proof to verify against the log's current root")
	}
}
