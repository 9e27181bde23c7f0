// Copyright 2025 Certen Protocol
//
// PipelineAdapter narrows a Lander down to the pkg/pipeline.Lander
// interface, so the pipeline package never needs to know about nonces,
// gas escalation or attempt numbers — those stay inside this package's
// Submit, which the pipeline calls with attempt 0 and leaves confirmation
// polling to the scheduler.

package lander

import (
	"context"

	"github.com/google/uuid"

	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/message"
)

// PipelineAdapter wraps a Lander for the pipeline's narrower Submit
// signature.
type PipelineAdapter struct {
	lander *Lander
}

// NewPipelineAdapter constructs an adapter over lander.
func NewPipelineAdapter(lander *Lander) *PipelineAdapter {
	return &PipelineAdapter{lander: lander}
}

// Submit starts a first-attempt submission for a pipeline-prepared tx.
func (a *PipelineAdapter) Submit(ctx context.Context, destination chain.Adapter, tx chain.Tx, messageID message.Hash, correlationID uuid.UUID) error {
	_, err := a.lander.Submit(ctx, tx, messageID, 0, correlationID)
	return err
}
