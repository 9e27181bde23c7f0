// Copyright 2025 Certen Protocol
//
// Per-chain nonce manager, adapted from pkg/execution.NonceTracker's
// reserve/submit/confirm lifecycle: instead of tracking a single
// Accumulate signer's sequence, one tracker exists per destination chain
// and is shared by every operation targeting it, since chain nonces are
// a single monotonic sequence per signing key regardless of how many
// pending operations exist.

package lander

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/certen/interchain-agent/pkg/agentd/logging"
)

// nonceState is the lifecycle of one reserved nonce.
type nonceState string

const (
	nonceReserved  nonceState = "reserved"
	nonceSubmitted nonceState = "submitted"
	nonceConfirmed nonceState = "confirmed"
	nonceFailed    nonceState = "failed"
)

// ChainNonceSource refreshes the authoritative on-chain nonce for the
// lander's signing address.
type ChainNonceSource interface {
	PendingNonce(ctx context.Context) (uint64, error)
}

// NonceManager reserves gap-free nonces for one destination chain's
// signing key, re-querying the chain periodically so a restart or a
// stuck-transaction replacement doesn't desync from the real sequence.
type NonceManager struct {
	mu sync.Mutex

	chainName string
	source    ChainNonceSource

	lastKnownNonce uint64
	pending        map[uint64]nonceState
	lastQuery      time.Time
	queryInterval  time.Duration
	maxPending     int

	logger *log.Logger
}

// NewNonceManager constructs a manager for one chain's signing key.
func NewNonceManager(chainName string, source ChainNonceSource) *NonceManager {
	return &NonceManager{
		chainName:     chainName,
		source:        source,
		pending:       make(map[uint64]nonceState),
		queryInterval: 30 * time.Second,
		maxPending:    100,
		logger:        logging.New(fmt.Sprintf("lander.nonce.%s", chainName)),
	}
}

// Reserve returns the next free nonce not already reserved/submitted.
func (m *NonceManager) Reserve(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastQuery) > m.queryInterval {
		if err := m.refresh(ctx); err != nil {
			m.logger.Printf("refresh chain nonce failed, using cached value: %v", err)
		}
	}

	next := m.lastKnownNonce
	for {
		if st, exists := m.pending[next]; exists && (st == nonceReserved || st == nonceSubmitted) {
			next++
			continue
		}
		break
	}

	if len(m.pending) >= m.maxPending {
		return 0, fmt.Errorf("lander: nonce manager for %s has %d pending nonces, refusing to reserve more", m.chainName, len(m.pending))
	}

	m.pending[next] = nonceReserved
	return next, nil
}

// MarkSubmitted records that a reserved nonce was broadcast.
func (m *NonceManager) MarkSubmitted(nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[nonce] = nonceSubmitted
}

// MarkConfirmed records inclusion and advances the known floor so future
// reservations never reuse a confirmed nonce.
func (m *NonceManager) MarkConfirmed(nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[nonce] = nonceConfirmed
	if nonce >= m.lastKnownNonce {
		m.lastKnownNonce = nonce + 1
	}
	delete(m.pending, nonce)
}

// MarkFailed releases a nonce back for reuse by a later reservation.
func (m *NonceManager) MarkFailed(nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, nonce)
}

func (m *NonceManager) refresh(ctx context.Context) error {
	n, err := m.source.PendingNonce(ctx)
	if err != nil {
		return err
	}
	if n > m.lastKnownNonce {
		m.lastKnownNonce = n
	}
	m.lastQuery = time.Now()
	return nil
}
