// Copyright 2025 Certen Protocol

package ism

import (
	"context"
	"testing"

	"github.com/certen/interchain-agent/pkg/checkpoint"
	"github.com/certen/interchain-agent/pkg/message"
)

func newTestCheckpointStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	syncer, err := checkpoint.NewLocalFSSyncer(t.TempDir())
	if err != nil {
		t.Fatalf("new local fs syncer: %v", err)
	}
	return checkpoint.New(syncer)
}

func TestChainResolver_LatestCheckpointNoneRegistered(t *testing.T) {
	source := NewStaticCheckpointSource(nil)
	r := NewChainResolver(nil, nil, source, nil)

	_, ok, err := r.LatestCheckpoint(context.Background(), message.Address32{0x01})
	if err == nil {
		t.Fatal("expected an error when no store is registered for the validator")
	}
	if ok {
		t.Fatal("expected ok=false when resolution fails")
	}
}

func TestChainResolver_LatestCheckpointBeforeAnyPublish(t *testing.T) {
	store := newTestCheckpointStore(t)
	source := NewStaticCheckpointSource(map[message.Address32]*checkpoint.Store{
		{0x01}: store,
	})
	r := NewChainResolver(nil, nil, source, nil)

	_, ok, err := r.LatestCheckpoint(context.Background(), message.Address32{0x01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false before any checkpoint has been published")
	}
}

func TestChainResolver_LatestCheckpointReturnsMostRecent(t *testing.T) {
	ctx := context.Background()
	store := newTestCheckpointStore(t)
	validator := message.Address32{0x01}

	if err := store.Publish(ctx, checkpoint.Entry{Checkpoint: message.Checkpoint{Index: 0}}); err != nil {
		t.Fatalf("publish 0: %v", err)
	}
	if err := store.Publish(ctx, checkpoint.Entry{Checkpoint: message.Checkpoint{Index: 1}}); err != nil {
		t.Fatalf("publish 1: %v", err)
	}

	source := NewStaticCheckpointSource(map[message.Address32]*checkpoint.Store{validator: store})
	r := NewChainResolver(nil, nil, source, nil)

	entry, ok, err := r.LatestCheckpoint(ctx, validator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true once a checkpoint has been published")
	}
	if entry.Checkpoint.Index != 1 {
		t.Fatalf("entry index = %d, want 1", entry.Checkpoint.Index)
	}
}

func TestStaticCheckpointSource_RegisterOverwrites(t *testing.T) {
	source := NewStaticCheckpointSource(nil)
	validator := message.Address32{0x02}

	first := newTestCheckpointStore(t)
	source.Register(validator, first)

	second := newTestCheckpointStore(t)
	source.Register(validator, second)

	got, err := source.StoreForValidator(context.Background(), validator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != second {
		t.Fatal("expected the most recent Register call to win")
	}
}
