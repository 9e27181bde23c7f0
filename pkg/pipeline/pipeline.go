// Copyright 2025 Certen Protocol
//
// Message processor pipeline: takes one indexed dispatch through
// admission, gas policy, ISM metadata construction, simulation, gas
// estimation and submission handoff, advancing a per-message state
// machine as it goes. Mirrors the linear stage-by-stage shape of
// pkg/batch.Processor's ProcessClosedBatch, generalized from "close a
// batch and anchor it" to "prepare a message and hand it to the lander".

package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/certen/interchain-agent/pkg/agentd/config"
	"github.com/certen/interchain-agent/pkg/agentd/errors"
	"github.com/certen/interchain-agent/pkg/agentd/logging"
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/ism"
	"github.com/certen/interchain-agent/pkg/message"
	"github.com/certen/interchain-agent/pkg/store"
)

// State is a pending operation's position in the delivery lifecycle.
type State string

const (
	StateNew       State = "new"
	StatePrepared  State = "prepared"
	StateSubmitted State = "submitted"
	StateConfirmed State = "confirmed"
	StateStuck     State = "stuck"
	StateDropped   State = "dropped"
)

// GasPolicy decides whether a message has accrued enough prepaid gas to
// proceed, per the configurable enforcement mode in RelayerConfig.
type GasPolicy interface {
	Sufficient(ctx context.Context, id message.Hash, destination chain.Adapter, estimatedGas uint64) (bool, error)
}

// Lander is the C7 submission surface the pipeline hands a prepared
// message to; kept as an interface here so pipeline tests don't need a
// live chain adapter.
type Lander interface {
	Submit(ctx context.Context, destination chain.Adapter, tx chain.Tx, messageID message.Hash, correlationID uuid.UUID) error
}

// Prepared is everything the lander needs to submit a message once the
// pipeline has finished building and simulating it.
type Prepared struct {
	Message       message.Message
	Metadata      []byte
	Tx            chain.Tx
	EstGas        uint64
	CorrelationID uuid.UUID
}

// Pipeline runs one message through every preparation stage.
type Pipeline struct {
	cfg         config.RelayerConfig
	ismBuilder  *ism.Builder
	gasPolicy   GasPolicy
	store       *store.Store
	logger      *log.Logger
}

// New constructs a Pipeline.
func New(cfg config.RelayerConfig, ismBuilder *ism.Builder, gasPolicy GasPolicy, st *store.Store) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		ismBuilder: ismBuilder,
		gasPolicy:  gasPolicy,
		store:      st,
		logger:     logging.New("pipeline"),
	}
}

// Process runs msg through admission, gas check, metadata build,
// simulation and gas estimation, returning a Prepared result ready for
// the lander, or an error classified by pkg/agentd/errors indicating
// whether the caller should retry.
func (p *Pipeline) Process(ctx context.Context, msg message.Message, destination chain.Adapter, originName string) (Prepared, error) {
	correlationID := uuid.New()
	span := logging.Span{Origin: originName, MessageID: msg.ID().String(), CorrelationID: correlationID.String(), Nonce: msg.Nonce, Stage: "admission"}

	if !p.admitted(msg.Sender, msg.Recipient) {
		return Prepared{}, fmt.Errorf("%w: sender %s -> recipient %s", errors.ErrNotAdmitted, msg.Sender, msg.Recipient)
	}

	if p.cfg.MaxBodySize > 0 && uint64(len(msg.Body)) > p.cfg.MaxBodySize {
		return Prepared{}, fmt.Errorf("%w: body size %d exceeds configured maximum %d", errors.ErrBodyTooLarge, len(msg.Body), p.cfg.MaxBodySize)
	}

	delivered, err := destination.Delivered(ctx, msg.ID())
	if err != nil {
		return Prepared{}, fmt.Errorf("pipeline: check delivered: %w", err)
	}
	if delivered {
		return Prepared{}, fmt.Errorf("pipeline: message %s already delivered", msg.ID())
	}

	span.Stage = "gas_expenditure_check"
	recipientISM, err := destination.RecipientISM(ctx, msg.Recipient)
	if err != nil {
		return Prepared{}, fmt.Errorf("pipeline: resolve recipient ism: %w", err)
	}

	estGasGuess := uint64(200000) // coarse pre-simulation estimate used only for the gas policy gate
	if p.gasPolicy != nil {
		ok, err := p.gasPolicy.Sufficient(ctx, msg.ID(), destination, estGasGuess)
		if err != nil {
			return Prepared{}, fmt.Errorf("pipeline: gas policy: %w", err)
		}
		if !ok {
			return Prepared{}, fmt.Errorf("%w: message %s", errors.ErrUnderfunded, msg.ID())
		}
	}

	span.Stage = "metadata_build"
	meta, err := p.ismBuilder.Build(ctx, msg, recipientISM)
	if err != nil {
		return Prepared{}, fmt.Errorf("pipeline: build ism metadata: %w", err)
	}

	span.Stage = "simulation"
	processCallData := encodeProcessCall(meta.Bytes, msg.Encode())
	tx := chain.Tx{
		To:   message.Address32{}, // the mailbox address; filled by the caller, who knows the destination chain's mailbox
		Data: processCallData,
	}
	gasEstimate, err := destination.EstimateGas(ctx, tx)
	if err != nil {
		return Prepared{}, fmt.Errorf("pipeline: simulate delivery: %w", err)
	}

	span.Stage = "gas_estimation"
	tx.GasLimit = addGasMargin(gasEstimate)

	p.logger.Printf("%s prepared gas_limit=%d", span.String(), tx.GasLimit)

	rec := store.PendingOpRecord{
		Kind:          store.PendingOpMessageDelivery,
		MessageID:     msg.ID(),
		Destination:   msg.Destination,
		Attempt:       0,
		NextAttemptAt: time.Now().Unix(),
		Stage:         string(StatePrepared),
	}
	if err := p.store.PutPendingOp(rec); err != nil {
		return Prepared{}, fmt.Errorf("pipeline: persist pending op: %w", err)
	}

	return Prepared{Message: msg, Metadata: meta.Bytes, Tx: tx, EstGas: gasEstimate, CorrelationID: correlationID}, nil
}

// admitted checks sender/recipient against the configured whitelist and
// blacklist, matched as lowercase hex addresses (relayer.whitelist[]/
// blacklist[] per the recipient/sender filter configuration, not chain
// names — an operator blocking a compromised recipient needs to name that
// recipient, not every chain it happens to live on).
func (p *Pipeline) admitted(sender, recipient message.Address32) bool {
	senderHex, recipientHex := sender.String(), recipient.String()
	if len(p.cfg.Blacklist) > 0 {
		for _, b := range p.cfg.Blacklist {
			if addressMatches(b, senderHex, recipientHex) {
				return false
			}
		}
	}
	if len(p.cfg.Whitelist) == 0 {
		return true
	}
	for _, w := range p.cfg.Whitelist {
		if addressMatches(w, senderHex, recipientHex) {
			return true
		}
	}
	return false
}

func addressMatches(filter, senderHex, recipientHex string) bool {
	filter = strings.ToLower(strings.TrimSpace(filter))
	return filter == strings.ToLower(senderHex) || filter == strings.ToLower(recipientHex)
}

// addGasMargin pads a simulated estimate the same way a first submission
// attempt needs headroom before the lander's own retry escalation takes
// over on subsequent attempts.
func addGasMargin(estimate uint64) uint64 {
	margin := estimate / 10 // 10%
	return estimate + margin
}

// encodeProcessCall packs the Mailbox.process(metadata, message) call
// data. The 4-byte selector is a placeholder the destination adapter's
// concrete ABI encoder replaces; this package only owns metadata/message
// ordering, not per-chain calldata encoding.
func encodeProcessCall(metadata, encodedMessage []byte) []byte {
	out := make([]byte, 0, 4+4+len(metadata)+4+len(encodedMessage))
	out = append(out, 0x00, 0x00, 0x00, 0x00) // selector filled in by the chain adapter
	out = appendLengthPrefixed(out, metadata)
	out = appendLengthPrefixed(out, encodedMessage)
	return out
}

func appendLengthPrefixed(dst, data []byte) []byte {
	n := len(data)
	dst = append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(dst, data...)
}
