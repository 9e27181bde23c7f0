// Copyright 2025 Certen Protocol
//
// StaticCheckpointSource resolves a validator's checkpoint.Store from a
// validator -> Store table rather than dereferencing an on-chain
// announcement each call. The table holds only what was passed to
// NewStaticCheckpointSource or Register, and one Store per validator is
// reused for the process lifetime. cmd/relayer constructs it empty and
// registers no validators, so there every lookup returns an error.

package ism

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/interchain-agent/pkg/checkpoint"
	"github.com/certen/interchain-agent/pkg/message"
)

// StaticCheckpointSource maps validator addresses to an already-constructed
// checkpoint.Store.
type StaticCheckpointSource struct {
	mu     sync.RWMutex
	stores map[message.Address32]*checkpoint.Store
}

// NewStaticCheckpointSource builds a source from a validator -> Store
// table.
func NewStaticCheckpointSource(stores map[message.Address32]*checkpoint.Store) *StaticCheckpointSource {
	if stores == nil {
		stores = make(map[message.Address32]*checkpoint.Store)
	}
	return &StaticCheckpointSource{stores: stores}
}

// Register adds or replaces the Store for one validator.
func (s *StaticCheckpointSource) Register(validator message.Address32, store *checkpoint.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[validator] = store
}

// StoreForValidator implements ism.CheckpointSource.
func (s *StaticCheckpointSource) StoreForValidator(_ context.Context, validator message.Address32) (*checkpoint.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	store, ok := s.stores[validator]
	if !ok {
		return nil, fmt.Errorf("ism: no checkpoint syncer configured for validator %s", validator)
	}
	return store, nil
}
