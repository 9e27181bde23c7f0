// Copyright 2025 Certen Protocol
//
// Lander submits prepared messages to their destination chain, escalating
// gas on repeated attempts the way pkg/ethereum.Client's
// SendContractTransactionWithRetry does, but capped at 1.125x per retry
// (rather than the 20%-per-attempt the anchor-writing path used) and
// bounded by each chain's configured gas cap so an unbounded retry storm
// can never run the escalation away. Confirmation is polled the same way
// pkg/anchor's EventWatcher polls for logs: a ticker, bounded retries, a
// terminal state recorded once observed.

package lander

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/certen/interchain-agent/pkg/agentd/errors"
	"github.com/certen/interchain-agent/pkg/agentd/logging"
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/message"
	"github.com/certen/interchain-agent/pkg/store"
)

// gasEscalationNumerator/Denominator implement the 1.125x-per-retry cap:
// new = old * 1125 / 1000.
const (
	gasEscalationNumerator   = 1125
	gasEscalationDenominator = 1000
)

// ProviderHealth tracks a simple rolling health score for one RPC
// provider behind a chain adapter, used to decide when to rotate away
// from a poisoned provider.
type ProviderHealth struct {
	consecutiveFailures int
	poisoned            bool
}

func (h *ProviderHealth) RecordSuccess() {
	h.consecutiveFailures = 0
	h.poisoned = false
}

func (h *ProviderHealth) RecordFailure() {
	h.consecutiveFailures++
	if h.consecutiveFailures >= 3 {
		h.poisoned = true
	}
}

func (h *ProviderHealth) Poisoned() bool { return h.poisoned }

// Submission is one in-flight submission attempt tracked by the lander.
type Submission struct {
	MessageID     message.Hash
	Destination   string
	Nonce         uint64
	Attempt       int
	GasPrice      *big.Int
	Handle        chain.TxHandle
	CorrelationID uuid.UUID
}

// inflightTx is the state Resubmit and PollAndEscalate need to replace a
// stuck submission without a fresh nonce: the original tx (minus the
// nonce/gas-price this Lander assigns) and the base gas price escalation
// multiplies from.
type inflightTx struct {
	baseTx       chain.Tx
	baseGasPrice *big.Int
	sub          Submission
	submittedAt  time.Time
}

// Lander drives submission and confirmation for one destination chain.
type Lander struct {
	chainName   string
	adapter     chain.Adapter
	nonces      *NonceManager
	store       *store.Store
	health      *ProviderHealth
	gasCapWei   *big.Int
	maxAttempts int
	logger      *log.Logger

	mu       sync.Mutex
	inflight map[message.Hash]*inflightTx
}

// New constructs a Lander for one destination chain.
func New(chainName string, adapter chain.Adapter, nonces *NonceManager, st *store.Store, gasCapWei *big.Int, maxAttempts int) *Lander {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Lander{
		chainName:   chainName,
		adapter:     adapter,
		nonces:      nonces,
		store:       st,
		health:      &ProviderHealth{},
		gasCapWei:   gasCapWei,
		maxAttempts: maxAttempts,
		logger:      logging.New(fmt.Sprintf("lander.%s", chainName)),
		inflight:    make(map[message.Hash]*inflightTx),
	}
}

// Submit reserves a nonce, escalates gas price per attempt, and submits
// tx for id. It does not block for confirmation; call PollConfirmation or
// PollAndEscalate separately (or via the scheduler) to observe the
// outcome. correlationID is carried through from the pipeline span that
// prepared tx, or uuid.Nil for batch submissions spanning more than one
// message.
func (l *Lander) Submit(ctx context.Context, tx chain.Tx, id message.Hash, attempt int, correlationID uuid.UUID) (Submission, error) {
	nonce, err := l.nonces.Reserve(ctx)
	if err != nil {
		return Submission{}, fmt.Errorf("lander: reserve nonce: %w", err)
	}

	baseGasPrice := tx.GasPrice
	sendTx := tx
	sendTx.Nonce = nonce
	sendTx.GasPrice = l.escalate(baseGasPrice, attempt)

	handle, err := l.adapter.Submit(ctx, sendTx)
	if err != nil {
		l.health.RecordFailure()
		l.nonces.MarkFailed(nonce)
		if l.health.Poisoned() {
			return Submission{}, fmt.Errorf("%w: chain %s", errors.ErrAlreadyPoisoned, l.chainName)
		}
		return Submission{}, fmt.Errorf("lander: submit: %w", err)
	}
	l.health.RecordSuccess()
	l.nonces.MarkSubmitted(nonce)

	sub := Submission{MessageID: id, Destination: l.chainName, Nonce: nonce, Attempt: attempt, GasPrice: sendTx.GasPrice, Handle: handle, CorrelationID: correlationID}

	l.mu.Lock()
	l.inflight[id] = &inflightTx{baseTx: tx, baseGasPrice: baseGasPrice, sub: sub, submittedAt: time.Now()}
	l.mu.Unlock()

	rec := store.PendingOpRecord{
		Kind:          store.PendingOpMessageDelivery,
		MessageID:     id,
		Destination:   l.adapter.Domain(),
		Attempt:       attempt,
		NextAttemptAt: time.Now().Unix(),
		Stage:         "submitted",
	}
	if err := l.store.PutPendingOp(rec); err != nil {
		l.logger.Printf("persist pending op failed for %s: %v", id, err)
	}

	l.logger.Printf("submitted message=%s nonce=%d attempt=%d gas_price=%s correlation_id=%s", id, nonce, attempt, sendTx.GasPrice, correlationID)
	return sub, nil
}

// Resubmit replaces a tracked in-flight submission at the same nonce with
// an escalated gas price. Reusing the nonce (instead of Submit's fresh
// Reserve) is what lets the replacement actually supersede the stuck tx
// on-chain rather than queue behind it.
func (l *Lander) Resubmit(ctx context.Context, id message.Hash) (Submission, error) {
	l.mu.Lock()
	inf, ok := l.inflight[id]
	l.mu.Unlock()
	if !ok {
		return Submission{}, fmt.Errorf("lander: no in-flight submission tracked for message %s", id)
	}

	nextAttempt := inf.sub.Attempt + 1
	if !l.ShouldRetry(nextAttempt) {
		return Submission{}, fmt.Errorf("lander: message %s exceeded max attempts (%d)", id, l.maxAttempts)
	}

	sendTx := inf.baseTx
	sendTx.Nonce = inf.sub.Nonce
	sendTx.GasPrice = l.escalate(inf.baseGasPrice, nextAttempt)

	handle, err := l.adapter.Submit(ctx, sendTx)
	if err != nil {
		l.health.RecordFailure()
		if l.health.Poisoned() {
			return Submission{}, fmt.Errorf("%w: chain %s", errors.ErrAlreadyPoisoned, l.chainName)
		}
		return Submission{}, fmt.Errorf("lander: resubmit: %w", err)
	}
	l.health.RecordSuccess()

	sub := Submission{MessageID: id, Destination: l.chainName, Nonce: inf.sub.Nonce, Attempt: nextAttempt, GasPrice: sendTx.GasPrice, Handle: handle, CorrelationID: inf.sub.CorrelationID}

	l.mu.Lock()
	l.inflight[id] = &inflightTx{baseTx: inf.baseTx, baseGasPrice: inf.baseGasPrice, sub: sub, submittedAt: time.Now()}
	l.mu.Unlock()

	rec := store.PendingOpRecord{
		Kind:          store.PendingOpMessageDelivery,
		MessageID:     id,
		Destination:   l.adapter.Domain(),
		Attempt:       nextAttempt,
		NextAttemptAt: time.Now().Unix(),
		Stage:         "submitted",
	}
	if err := l.store.PutPendingOp(rec); err != nil {
		l.logger.Printf("persist pending op failed for %s: %v", id, err)
	}

	l.logger.Printf("resubmitted message=%s nonce=%d attempt=%d gas_price=%s", id, inf.sub.Nonce, nextAttempt, sendTx.GasPrice)
	return sub, nil
}

// PollAndEscalate resubmits every tracked submission that has sat pending
// past staleInterval, at an escalated gas price and the same nonce.
// Authoritative confirmation (retiring a message from pending_ops) is the
// destination-side Process indexer's job, not this poll; a tx observed
// included or reverted here is simply stopped from tracking further.
func (l *Lander) PollAndEscalate(ctx context.Context, staleInterval time.Duration) error {
	now := time.Now()
	l.mu.Lock()
	var due []message.Hash
	for id, inf := range l.inflight {
		if now.Sub(inf.submittedAt) >= staleInterval {
			due = append(due, id)
		}
	}
	l.mu.Unlock()

	for _, id := range due {
		l.mu.Lock()
		inf, ok := l.inflight[id]
		l.mu.Unlock()
		if !ok {
			continue
		}

		status, err := l.adapter.TxStatus(ctx, inf.sub.Handle)
		if err != nil {
			l.logger.Printf("poll status for %s: %v", id, err)
			continue
		}

		switch status.State {
		case chain.TxIncluded:
			l.nonces.MarkConfirmed(inf.sub.Nonce)
			l.untrack(id)
		case chain.TxReverted:
			l.nonces.MarkFailed(inf.sub.Nonce)
			l.untrack(id)
			l.logger.Printf("message %s reverted: %s", id, status.RevertEvent)
		case chain.TxDropped, chain.TxPending:
			if _, err := l.Resubmit(ctx, id); err != nil {
				l.logger.Printf("escalate %s: %v", id, err)
			}
		}
	}
	return nil
}

func (l *Lander) untrack(id message.Hash) {
	l.mu.Lock()
	delete(l.inflight, id)
	l.mu.Unlock()
}

// escalate applies the 1.125x-per-retry multiplier relative to a base
// gas price, capped at the configured per-chain ceiling.
func (l *Lander) escalate(base *big.Int, attempt int) *big.Int {
	if base == nil {
		base = big.NewInt(0)
	}
	price := new(big.Int).Set(base)
	for i := 0; i < attempt; i++ {
		price = price.Mul(price, big.NewInt(gasEscalationNumerator))
		price = price.Div(price, big.NewInt(gasEscalationDenominator))
	}
	if l.gasCapWei != nil && price.Cmp(l.gasCapWei) > 0 {
		price = new(big.Int).Set(l.gasCapWei)
	}
	return price
}

// PollConfirmation checks a submitted handle's status once. Callers loop
// this from the scheduler rather than this package owning a ticker, so
// one scheduler can multiplex confirmation polling across every chain's
// lander.
func (l *Lander) PollConfirmation(ctx context.Context, sub Submission) (chain.TxStatus, error) {
	status, err := l.adapter.TxStatus(ctx, sub.Handle)
	if err != nil {
		return chain.TxStatus{}, fmt.Errorf("lander: poll tx status: %w", err)
	}

	switch status.State {
	case chain.TxIncluded:
		l.nonces.MarkConfirmed(sub.Nonce)
	case chain.TxReverted:
		// a reverted tx was still mined, so its nonce is consumed
		l.nonces.MarkConfirmed(sub.Nonce)
		return status, fmt.Errorf("%w: %s", errors.ErrRevertWith, status.RevertEvent)
	case chain.TxDropped:
		l.nonces.MarkFailed(sub.Nonce)
	}
	return status, nil
}

// ShouldRetry reports whether another submission attempt is allowed for
// this lander's configured attempt budget.
func (l *Lander) ShouldRetry(attempt int) bool {
	return attempt < l.maxAttempts
}
