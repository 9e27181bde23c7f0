// Copyright 2025 Certen Protocol
//
// Persistent Store - Namespaced KV Storage for Interchain Message State
//
// Wraps a cometbft-db dbm.DB the same way pkg/kvdb adapts it for the
// ledger package, but with the namespace layout this network's
// components need: message_by_nonce, message_by_id,
// gas_payment_by_message_id, merkle_insertion_by_index, pending_ops,
// cursor_state. Writes that must land together go through an atomic
// batch; reads are snapshot-consistent per key because the underlying
// engine serves a point-in-time value per Get.

package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/interchain-agent/pkg/domain"
)

// ErrNotFound is returned by typed Get helpers when a key is absent.
var ErrNotFound = errors.New("store: key not found")

// Namespace is a single-byte prefix separating the logical tables this
// store multiplexes onto one physical KV engine.
type Namespace byte

const (
	NamespaceMessageByNonce         Namespace = 0x01
	NamespaceMessageByID            Namespace = 0x02
	NamespaceGasPaymentByMessageID  Namespace = 0x03
	NamespaceMerkleInsertionByIndex Namespace = 0x04
	NamespacePendingOps             Namespace = 0x05
	NamespaceCursorState            Namespace = 0x06
)

// Store is the persistent store shared by every component on one process:
// write groups are atomic, reads are lock-free snapshots, consistent with
// the concurrency model every other component assumes.
type Store struct {
	db dbm.DB
}

// New wraps an already-open cometbft-db database.
func New(db dbm.DB) *Store {
	return &Store{db: db}
}

func key(ns Namespace, parts ...[]byte) []byte {
	total := 1
	for _, p := range parts {
		total += len(p) + 1
	}
	out := make([]byte, 0, total)
	out = append(out, byte(ns))
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uint32Key(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func uint64Key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// ---------------------------------------------------------------------------
// generic typed helpers
// ---------------------------------------------------------------------------

func (s *Store) getJSON(k []byte, out interface{}) error {
	v, err := s.db.Get(k)
	if err != nil {
		return fmt.Errorf("store: get: %w", err)
	}
	if v == nil {
		return ErrNotFound
	}
	return json.Unmarshal(v, out)
}

func (s *Store) setJSON(k []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	return s.db.SetSync(k, b)
}

// ---------------------------------------------------------------------------
// message_by_nonce / message_by_id
// ---------------------------------------------------------------------------

// MessageRecord is the persisted form of one dispatched message plus the
// indexing context needed to rebuild a PendingOperation after a restart.
type MessageRecord struct {
	Origin      domain.Domain `json:"origin"`
	Nonce       uint32        `json:"nonce"`
	MessageID   [32]byte      `json:"message_id"`
	Destination domain.Domain `json:"destination"`
	Sender      [32]byte      `json:"sender"`
	Recipient   [32]byte      `json:"recipient"`
	Body        []byte        `json:"body"`
	DispatchBlk uint64        `json:"dispatch_block"`
}

func messageByNonceKey(origin domain.Domain, nonce uint32) []byte {
	return key(NamespaceMessageByNonce, uint32Key(uint32(origin)), uint32Key(nonce))
}

func messageByIDKey(id [32]byte) []byte {
	return key(NamespaceMessageByID, id[:])
}

// PutMessage writes a message under both namespaces atomically; the
// (origin,nonce) -> id mapping is how the indexer detects an id collision
// — the same (origin,nonce) must always yield the same message id.
func (s *Store) PutMessage(rec MessageRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal message: %w", err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(messageByNonceKey(rec.Origin, rec.Nonce), rec.MessageID[:]); err != nil {
		return err
	}
	if err := batch.Set(messageByIDKey(rec.MessageID), body); err != nil {
		return err
	}
	return batch.WriteSync()
}

// MessageIDForNonce returns the message id already recorded for
// (origin,nonce), if any — used to detect an id mismatch on redelivery of
// the same dispatch log.
func (s *Store) MessageIDForNonce(origin domain.Domain, nonce uint32) ([32]byte, bool, error) {
	v, err := s.db.Get(messageByNonceKey(origin, nonce))
	if err != nil {
		return [32]byte{}, false, err
	}
	if v == nil {
		return [32]byte{}, false, nil
	}
	var id [32]byte
	copy(id[:], v)
	return id, true, nil
}

func (s *Store) GetMessage(id [32]byte) (MessageRecord, error) {
	var rec MessageRecord
	err := s.getJSON(messageByIDKey(id), &rec)
	return rec, err
}

// ---------------------------------------------------------------------------
// gas_payment_by_message_id
// ---------------------------------------------------------------------------

// GasPaymentRecord is one additive payment contribution for a message id.
type GasPaymentRecord struct {
	Payment   string `json:"payment"`    // decimal big.Int string
	GasAmount string `json:"gas_amount"` // decimal big.Int string
}

func gasPaymentKey(id [32]byte, seq uint64) []byte {
	return key(NamespaceGasPaymentByMessageID, id[:], uint64Key(seq))
}

// AppendGasPayment records one more payment event for a message id under
// a monotonic per-message sequence number so multiple payments never
// collide.
func (s *Store) AppendGasPayment(id [32]byte, seq uint64, rec GasPaymentRecord) error {
	return s.setJSON(gasPaymentKey(id, seq), rec)
}

// GasPaymentsForMessage iterates every payment recorded for a message id.
func (s *Store) GasPaymentsForMessage(id [32]byte) ([]GasPaymentRecord, error) {
	prefix := key(NamespaceGasPaymentByMessageID, id[:])
	it, err := s.db.Iterator(prefix, prefixUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []GasPaymentRecord
	for ; it.Valid(); it.Next() {
		var rec GasPaymentRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, it.Error()
}

// ---------------------------------------------------------------------------
// merkle_insertion_by_index
// ---------------------------------------------------------------------------

func merkleInsertionKey(chainDomain domain.Domain, index uint32) []byte {
	return key(NamespaceMerkleInsertionByIndex, uint32Key(uint32(chainDomain)), uint32Key(index))
}

// PutMerkleInsertion persists the leaf for one append-only tree index.
func (s *Store) PutMerkleInsertion(chainDomain domain.Domain, index uint32, messageID [32]byte) error {
	return s.db.SetSync(merkleInsertionKey(chainDomain, index), messageID[:])
}

// MerkleInsertion returns the message id recorded at index, or
// ErrNotFound.
func (s *Store) MerkleInsertion(chainDomain domain.Domain, index uint32) ([32]byte, error) {
	v, err := s.db.Get(merkleInsertionKey(chainDomain, index))
	if err != nil {
		return [32]byte{}, err
	}
	if v == nil {
		return [32]byte{}, ErrNotFound
	}
	var id [32]byte
	copy(id[:], v)
	return id, nil
}

// ---------------------------------------------------------------------------
// pending_ops
// ---------------------------------------------------------------------------

// PendingOpKind tags the variant a PendingOpRecord carries.
type PendingOpKind string

const (
	PendingOpMessageDelivery PendingOpKind = "message_delivery"
	PendingOpSelfAnnounce    PendingOpKind = "self_announce"
)

// PendingOpRecord is the persisted tagged-variant form of a pending
// operation — one owner queue at a time, handed off atomically via this
// store (the pipeline and lander never both believe they own the same
// operation because ownership transfer is a single atomic write here).
type PendingOpRecord struct {
	Kind          PendingOpKind `json:"kind"`
	MessageID     [32]byte      `json:"message_id"`
	Destination   domain.Domain `json:"destination"`
	Attempt       int           `json:"attempt"`
	NextAttemptAt int64         `json:"next_attempt_at"` // unix seconds
	Stage         string        `json:"stage"`
	LastError     string        `json:"last_error,omitempty"`
}

func pendingOpKey(destination domain.Domain, messageID [32]byte) []byte {
	return key(NamespacePendingOps, uint32Key(uint32(destination)), messageID[:])
}

func (s *Store) PutPendingOp(rec PendingOpRecord) error {
	return s.setJSON(pendingOpKey(rec.Destination, rec.MessageID), rec)
}

func (s *Store) GetPendingOp(destination domain.Domain, messageID [32]byte) (PendingOpRecord, error) {
	var rec PendingOpRecord
	err := s.getJSON(pendingOpKey(destination, messageID), &rec)
	return rec, err
}

// DeletePendingOp removes an operation once it reaches a terminal state
// (Confirmed or Dropped).
func (s *Store) DeletePendingOp(destination domain.Domain, messageID [32]byte) error {
	return s.db.DeleteSync(pendingOpKey(destination, messageID))
}

// PendingOpsForDestination iterates every pending operation queued for a
// destination, in key order (which is message-id order, not readiness
// order — callers needing FIFO-by-readiness maintain their own in-memory
// priority queue seeded from this iteration at startup).
func (s *Store) PendingOpsForDestination(destination domain.Domain) ([]PendingOpRecord, error) {
	prefix := key(NamespacePendingOps, uint32Key(uint32(destination)))
	it, err := s.db.Iterator(prefix, prefixUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []PendingOpRecord
	for ; it.Valid(); it.Next() {
		var rec PendingOpRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, it.Error()
}

// ---------------------------------------------------------------------------
// cursor_state
// ---------------------------------------------------------------------------

// CursorDirection is forward (tip-following) or backward
// (sequence-aware, bootstrap toward a configured floor).
type CursorDirection string

const (
	CursorForward  CursorDirection = "forward"
	CursorBackward CursorDirection = "backward"
)

// CursorState is the durable progress record for one (chain, event_type)
// indexing task.
type CursorState struct {
	LastSyncedBlock       uint64          `json:"last_synced_block"`
	Direction             CursorDirection `json:"direction"`
	LowestBlockConfigured uint64          `json:"lowest_block_configured"`
	SequenceFrontier      uint32          `json:"sequence_frontier"`
}

func cursorStateKey(chainName string, eventType string) []byte {
	return key(NamespaceCursorState, []byte(chainName), []byte(":"), []byte(eventType))
}

// PutCursorState is called only by the owning indexer task for that
// (chain,event_type) pair — no other component ever writes this key.
func (s *Store) PutCursorState(chainName, eventType string, state CursorState) error {
	return s.setJSON(cursorStateKey(chainName, eventType), state)
}

func (s *Store) GetCursorState(chainName, eventType string) (CursorState, error) {
	var state CursorState
	err := s.getJSON(cursorStateKey(chainName, eventType), &state)
	return state, err
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for use as an Iterator's exclusive end bound.
func prefixUpperBound(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded
}
