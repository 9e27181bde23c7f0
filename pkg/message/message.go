// Copyright 2025 Certen Protocol
//
// Interchain message, checkpoint and gas-payment data model.
//
// These types are the wire/storage format shared by every component: the
// indexer produces them, the persistent store keys on them, the ISM
// builder signs over them, and the lander never looks at them directly
// (it only sees opaque chain.Tx values built by the pipeline).

package message

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/certen/interchain-agent/pkg/domain"
)

// =============================================================================
// CORE IDENTIFIERS
// =============================================================================

// Hash is a 32-byte digest: a message id, a merkle root, or a block hash.
type Hash [32]byte

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// IsZero reports whether h is the all-zero hash (used as a sentinel for
// "not yet known").
func (h Hash) IsZero() bool { return h == Hash{} }

// Address32 is a chain address left-padded to 32 bytes, the wire format
// Hyperlane-style mailboxes use so EVM's 20-byte addresses and Sealevel's
// 32-byte pubkeys share one encoding.
type Address32 [32]byte

func (a Address32) String() string { return "0x" + hex.EncodeToString(a[:]) }

// Address32FromHex parses a "0x"-optional hex string into an Address32,
// left-padding inputs shorter than 32 bytes (the common case: a 20-byte
// EVM address) and rejecting anything longer.
func Address32FromHex(s string) (Address32, error) {
	var out Address32
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("message: decode address hex %q: %w", s, err)
	}
	if len(raw) > 32 {
		return out, fmt.Errorf("message: address %q longer than 32 bytes", s)
	}
	copy(out[32-len(raw):], raw)
	return out, nil
}

// AddressFromEVM left-pads a 20-byte EVM address into an Address32.
func AddressFromEVM(addr [20]byte) Address32 {
	var out Address32
	copy(out[12:], addr[:])
	return out
}

// =============================================================================
// HYPERLANE MESSAGE
// =============================================================================

// Message is one interchain message as dispatched from a Mailbox contract.
type Message struct {
	Version     uint8
	Nonce       uint32
	Origin      domain.Domain
	Sender      Address32
	Destination domain.Domain
	Recipient   Address32
	Body        []byte
}

// Encode produces the canonical packed encoding used both on-chain and for
// MessageID. Layout: version(1) | nonce(4) | origin(4) | sender(32) |
// destination(4) | recipient(32) | body(N), all big-endian — the same
// field order the Mailbox contract packs for Dispatch.
func (m Message) Encode() []byte {
	buf := make([]byte, 1+4+4+32+4+32+len(m.Body))
	i := 0
	buf[i] = m.Version
	i++
	binary.BigEndian.PutUint32(buf[i:], m.Nonce)
	i += 4
	binary.BigEndian.PutUint32(buf[i:], uint32(m.Origin))
	i += 4
	copy(buf[i:i+32], m.Sender[:])
	i += 32
	binary.BigEndian.PutUint32(buf[i:], uint32(m.Destination))
	i += 4
	copy(buf[i:i+32], m.Recipient[:])
	i += 32
	copy(buf[i:], m.Body)
	return buf
}

// ID returns the message id: a hash over the canonical packed encoding.
// The same (Origin, Nonce) pair must always hash to the same ID — the
// indexer treats a violation of that as a fatal error (it implies either
// a reorg past the indexer's finality lag, or two dispatches colliding on
// sequence, neither of which the pipeline can safely continue past).
func (m Message) ID() Hash {
	return Hash(sha256.Sum256(m.Encode()))
}

// Decode parses a canonically packed message body back into a Message.
func Decode(data []byte) (Message, error) {
	const headerLen = 1 + 4 + 4 + 32 + 4 + 32
	if len(data) < headerLen {
		return Message{}, fmt.Errorf("message: encoded length %d shorter than header %d", len(data), headerLen)
	}
	var m Message
	i := 0
	m.Version = data[i]
	i++
	m.Nonce = binary.BigEndian.Uint32(data[i:])
	i += 4
	m.Origin = domain.Domain(binary.BigEndian.Uint32(data[i:]))
	i += 4
	copy(m.Sender[:], data[i:i+32])
	i += 32
	m.Destination = domain.Domain(binary.BigEndian.Uint32(data[i:]))
	i += 4
	copy(m.Recipient[:], data[i:i+32])
	i += 32
	m.Body = append([]byte(nil), data[i:]...)
	return m, nil
}

// =============================================================================
// CHECKPOINT
// =============================================================================

// Checkpoint attests to a specific (root, index) of one chain's dispatch
// merkle tree.
type Checkpoint struct {
	MerkleTreeAddress Address32
	MailboxDomain     domain.Domain
	Root              Hash
	Index             uint32
}

// SignedCheckpoint is a Checkpoint plus one validator's signature over its
// canonical encoding.
type SignedCheckpoint struct {
	Checkpoint Checkpoint
	Signature  []byte
	Validator  Address32
}

// SignedCheckpointWithMessageID additionally binds a specific message id,
// the form the message-id multisig ISM consumes (as opposed to
// merkle-root multisig, which only needs the bare SignedCheckpoint plus a
// proof).
type SignedCheckpointWithMessageID struct {
	SignedCheckpoint SignedCheckpoint
	MessageID        Hash
}

// SigningDigest is what validators actually sign: domain-separated so a
// checkpoint signature can never be replayed as a signature over anything
// else the protocol defines.
func (c Checkpoint) SigningDigest() Hash {
	buf := make([]byte, 0, 32+4+32+4+len("HYPERLANE_CHECKPOINT"))
	buf = append(buf, []byte("HYPERLANE_CHECKPOINT")...)
	buf = append(buf, c.MerkleTreeAddress[:]...)
	var domainBuf [4]byte
	binary.BigEndian.PutUint32(domainBuf[:], uint32(c.MailboxDomain))
	buf = append(buf, domainBuf[:]...)
	buf = append(buf, c.Root[:]...)
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], c.Index)
	buf = append(buf, idxBuf[:]...)
	return Hash(sha256.Sum256(buf))
}

// SigningDigestWithMessageID is the message-id-bound variant of
// SigningDigest, used by the message-id multisig ISM.
func (c Checkpoint) SigningDigestWithMessageID(messageID Hash) Hash {
	digest := c.SigningDigest()
	buf := append(append([]byte(nil), digest[:]...), messageID[:]...)
	return Hash(sha256.Sum256(buf))
}

// =============================================================================
// MERKLE TREE INSERTION
// =============================================================================

// MerkleTreeInsertion is one append to a chain's dispatch merkle tree.
// Index must be dense and strictly increasing from 0 — a gap is a fatal
// indexer condition (see pkg/agentd/errors.ErrSequenceGap).
type MerkleTreeInsertion struct {
	Index     uint32
	MessageID Hash
}

// =============================================================================
// GAS PAYMENT
// =============================================================================

// GasPayment is one IGP GasPayment event. Multiple payments for the same
// MessageID are additive — the pipeline sums them before comparing against
// any prepayment policy. Payment and GasAmount are u256 on chain, so both
// are carried as *big.Int rather than a fixed-width Go integer.
type GasPayment struct {
	MessageID   Hash
	Payment     *big.Int // native token units paid to the paymaster
	GasAmount   *big.Int // gas units the payment is meant to cover
	Destination domain.Domain
}

// SumGasPayments returns the summed Payment and GasAmount of a GasPayment
// sequence for one message, using zero for an empty slice rather than nil
// *big.Int.
func SumGasPayments(payments []GasPayment) (*big.Int, *big.Int) {
	totalPayment := new(big.Int)
	totalGas := new(big.Int)
	for _, p := range payments {
		if p.Payment != nil {
			totalPayment.Add(totalPayment, p.Payment)
		}
		if p.GasAmount != nil {
			totalGas.Add(totalGas, p.GasAmount)
		}
	}
	return totalPayment, totalGas
}
