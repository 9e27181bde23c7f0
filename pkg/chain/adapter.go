// Copyright 2025 Certen Protocol
//
// Chain Adapter Interface - Uniform View Across Heterogeneous Chains
// Supports EVM, Cosmos, Sealevel (Solana), Starknet and Aleo
//
// Every chain-specific RPC integration beyond this interface is an
// external collaborator's concern: this package only specifies the trait
// contract and the protocol -> factory registry, never a real RPC client
// for non-EVM chains.

package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/certen/interchain-agent/pkg/domain"
	"github.com/certen/interchain-agent/pkg/message"
)

// =============================================================================
// PLATFORM IDENTIFIERS
// =============================================================================

// Protocol identifies the chain execution family an Adapter speaks.
type Protocol string

const (
	ProtocolEVM      Protocol = domain.ProtocolEVM
	ProtocolCosmos   Protocol = domain.ProtocolCosmos
	ProtocolSealevel Protocol = domain.ProtocolSealevel
	ProtocolStarknet Protocol = domain.ProtocolStarknet
	ProtocolAleo     Protocol = domain.ProtocolAleo
)

// IsValid reports whether p is a recognized protocol.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolEVM, ProtocolCosmos, ProtocolSealevel, ProtocolStarknet, ProtocolAleo:
		return true
	default:
		return false
	}
}

// =============================================================================
// EVENTS, RANGES AND HANDLES
// =============================================================================

// EventType tags the kind of on-chain event an Indexed[Event] wraps.
type EventType string

const (
	EventDispatch         EventType = "dispatch"
	EventDispatchID       EventType = "dispatch_id"
	EventProcess          EventType = "process"
	EventProcessID        EventType = "process_id"
	EventMerkleInsertion  EventType = "merkle_insertion"
	EventGasPayment       EventType = "gas_payment"
)

// BlockRange is an inclusive [From, To] block window to scan.
type BlockRange struct {
	From uint64
	To   uint64
}

// LogFilter narrows FetchLogs to one or more event types from one
// contract address.
type LogFilter struct {
	ContractAddress message.Address32
	EventTypes      []EventType
}

// Event is the decoded payload of one on-chain log. Exactly one of the
// typed fields is populated, selected by Type.
type Event struct {
	Type            EventType
	Dispatch        *DispatchEvent
	Process         *ProcessEvent
	MerkleInsertion *message.MerkleTreeInsertion
	GasPayment      *message.GasPayment
}

// DispatchEvent mirrors the Mailbox Dispatch(sender,destination,
// recipient,message) event.
type DispatchEvent struct {
	Sender      message.Address32
	Destination domain.Domain
	Recipient   message.Address32
	Message     message.Message
}

// ProcessEvent mirrors the Mailbox Process(origin,sender,recipient)
// event, keyed to a message id via the indexer's own decode of the
// transaction (Process does not carry message id directly on most
// chains; ProcessId does, and the indexer correlates the pair).
type ProcessEvent struct {
	Origin    domain.Domain
	Sender    message.Address32
	Recipient message.Address32
	MessageID message.Hash
}

// Indexed wraps an Event with the ordering key FetchLogs must sort by:
// (Block, IndexWithinBlock), plus a dedup key — (Block, TxHash,
// LogIndex) for EVM-shaped chains or (Slot, TxSignature, EventIndex) for
// Sealevel-shaped chains, folded here into TxHash/LogIndex so the
// indexer's dedup logic is protocol-agnostic.
type Indexed struct {
	Event            Event
	Block            uint64
	IndexWithinBlock uint32
	TxHash           message.Hash
	LogIndex         uint32
}

// TxHandle identifies a submitted transaction for later status polling.
type TxHandle struct {
	Hash message.Hash
}

// TxState is the lifecycle state of a submitted transaction.
type TxState string

const (
	TxPending  TxState = "pending"
	TxIncluded TxState = "included"
	TxReverted TxState = "reverted"
	TxDropped  TxState = "dropped"
)

// TxStatus is the result of polling a TxHandle.
type TxStatus struct {
	State       TxState
	Block       uint64 // valid when State == TxIncluded
	RevertEvent string // valid when State == TxReverted
}

// Tx is an unsigned transaction request to submit.
type Tx struct {
	To       message.Address32
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrReverted is returned by EstimateGas/Submit wrapping the on-chain
// revert reason string.
var ErrReverted = errors.New("chain: transaction would revert")

// RevertError carries the decoded revert reason alongside ErrReverted.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "reverted: " + e.Reason }
func (e *RevertError) Unwrap() error { return ErrReverted }

// =============================================================================
// ADAPTER INTERFACE
// =============================================================================

// Adapter is the uniform view over one chain's Mailbox/ISM/gas-paymaster
// surface. One Adapter instance is shared by every task operating on a
// given chain (the indexer, the pipeline's simulation/estimation calls,
// the lander's submission and confirmation calls, the ISM builder's view
// calls) — rate limiting happens per-provider inside the adapter, not per
// caller.
type Adapter interface {
	Protocol() Protocol
	Domain() domain.Domain
	NetworkName() string

	// FetchLogs returns events in a block range ordered by (Block,
	// IndexWithinBlock).
	FetchLogs(ctx context.Context, r BlockRange, filter LogFilter) ([]Indexed, error)

	// LatestFinalizedBlock is monotone per-provider but may regress
	// across a provider rotation; callers are expected to tolerate a
	// regression rather than treat it as a reorg.
	LatestFinalizedBlock(ctx context.Context) (uint64, error)

	// CallView executes a read-only contract call against `to`.
	CallView(ctx context.Context, to message.Address32, data []byte) ([]byte, error)

	// EstimateGas returns the gas a transaction would consume, or a
	// *RevertError if the transaction would revert.
	EstimateGas(ctx context.Context, tx Tx) (uint64, error)

	// Submit broadcasts a signed transaction and returns a handle for
	// polling via TxStatus.
	Submit(ctx context.Context, tx Tx) (TxHandle, error)

	// TxStatus polls the current state of a previously submitted
	// transaction.
	TxStatus(ctx context.Context, handle TxHandle) (TxStatus, error)

	// RecipientISM resolves the ISM address a recipient uses, via the
	// Mailbox's recipientIsm(recipient) view.
	RecipientISM(ctx context.Context, recipient message.Address32) (message.Address32, error)

	// Delivered reports whether the Mailbox already marked a message id
	// as delivered (used by the pipeline's simulation stage to detect
	// the "already delivered" sentinel without a real process() call).
	Delivered(ctx context.Context, id message.Hash) (bool, error)

	// Health reports whether the adapter's current primary provider is
	// reachable.
	Health(ctx context.Context) error
}

// Timeouts bundles the adapter-level timeouts every concrete
// implementation is expected to honor for RPC calls.
type Timeouts struct {
	CallTimeout   time.Duration
	SubmitTimeout time.Duration
}

// DefaultTimeouts matches the polling cadence used throughout the rest of
// this codebase (event_watcher-style 15s poll, 2s retry backoff).
var DefaultTimeouts = Timeouts{
	CallTimeout:   15 * time.Second,
	SubmitTimeout: 30 * time.Second,
}
