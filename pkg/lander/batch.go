// Copyright 2025 Certen Protocol
//
// Batch submission with bisection fallback: a destination mailbox that
// accepts a processBatch(metadatas[], messages[]) call lets the lander
// amortize gas overhead across many pending deliveries, but a single bad
// message in the batch reverts the whole call. Bisection finds the
// offending message(s) by halving the batch on a revert instead of
// falling back to one-at-a-time immediately.

package lander

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/message"
)

// BatchItem is one message queued for batched submission.
type BatchItem struct {
	ID  message.Hash
	Tx  chain.Tx // pre-built single-message tx; SubmitBatch does not use it (single-item batches also go through the BatchBuilder)
}

// BatchBuilder packs a set of items into one batched Tx.
type BatchBuilder func(items []BatchItem) (chain.Tx, error)

// SubmitBatchResult reports which items landed in a successful call and
// which single-item submissions failed or reverted after bisection.
type SubmitBatchResult struct {
	Delivered []message.Hash
	Reverted  []message.Hash
}

// SubmitBatch attempts to submit all of items in one transaction. On a
// revert it bisects the batch and retries each half independently,
// recursing until it isolates the reverting message(s) or reaches a
// single-item batch (built through the same BatchBuilder).
func (l *Lander) SubmitBatch(ctx context.Context, items []BatchItem, build BatchBuilder, attempt int) (SubmitBatchResult, error) {
	if len(items) == 0 {
		return SubmitBatchResult{}, nil
	}

	tx, err := build(items)
	if err != nil {
		return SubmitBatchResult{}, fmt.Errorf("lander: build batch tx: %w", err)
	}

	ids := make([]message.Hash, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	sub, err := l.Submit(ctx, tx, ids[0], attempt, uuid.Nil)
	if err == nil {
		status, perr := l.PollConfirmation(ctx, sub)
		if perr == nil && status.State == chain.TxIncluded {
			return SubmitBatchResult{Delivered: ids}, nil
		}
		err = perr
	}

	if len(items) == 1 {
		return SubmitBatchResult{Reverted: ids}, err
	}

	mid := len(items) / 2
	left, lerr := l.SubmitBatch(ctx, items[:mid], build, attempt)
	right, rerr := l.SubmitBatch(ctx, items[mid:], build, attempt)

	result := SubmitBatchResult{
		Delivered: append(left.Delivered, right.Delivered...),
		Reverted:  append(left.Reverted, right.Reverted...),
	}
	if lerr != nil {
		return result, lerr
	}
	return result, rerr
}
