// Copyright 2025 Certen Protocol
//
// Validator checkpoint store: content-addressed, append-only, published
// under a well-known external layout so relayers can discover validator
// signatures without a shared database. A Syncer handles the physical
// object medium (local filesystem during development, GCS in
// production); Store adds the indexing, ordering and latest-pointer
// logic on top.

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/certen/interchain-agent/pkg/agentd/logging"
	"github.com/certen/interchain-agent/pkg/message"
)

// Announcement is published once per validator at a fixed path so a
// relayer bootstrapping against a new validator knows where to look.
type Announcement struct {
	Validator      message.Address32 `json:"validator"`
	MailboxAddress message.Address32 `json:"mailbox_address"`
	MailboxDomain  uint32            `json:"mailbox_domain"`
	StorageLocation string           `json:"storage_location"`
}

// Entry is one signed checkpoint as published to the object store, keyed
// by its index under <index>.json.
type Entry struct {
	Checkpoint message.Checkpoint `json:"checkpoint"`
	Signature  []byte             `json:"signature"`
	MessageID  *message.Hash      `json:"message_id,omitempty"`
}

// LatestIndex is the content of latest_index.json, a pointer so readers
// don't need to list the bucket to find the newest checkpoint.
type LatestIndex struct {
	Index uint32 `json:"latest_index"`
}

// Syncer is the physical medium a Store publishes objects to. Local-FS
// and GCS implementations satisfy it; both are safe for concurrent use
// by one validator process (only one process signs for a given
// validator key at a time, but reads may run concurrently with writes).
type Syncer interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

const (
	pathAnnouncement = "announcement.json"
	pathLatestIndex  = "latest_index.json"
)

func pathForIndex(index uint32) string {
	return fmt.Sprintf("%d.json", index)
}

// Store is the validator-side checkpoint publisher and the relayer-side
// checkpoint reader; which half a caller exercises depends on whether it
// calls Publish or Get*.
type Store struct {
	syncer Syncer
	logger *log.Logger
}

// New wraps a Syncer with the checkpoint indexing logic.
func New(syncer Syncer) *Store {
	return &Store{syncer: syncer, logger: logging.New("checkpoint.store")}
}

// PublishAnnouncement writes the fixed-path announcement document. Safe
// to call repeatedly; each call overwrites the previous announcement.
func (s *Store) PublishAnnouncement(ctx context.Context, a Announcement) error {
	body, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal announcement: %w", err)
	}
	return s.syncer.Write(ctx, pathAnnouncement, body)
}

// Publish writes one signed checkpoint at its index path, then advances
// latest_index.json if this index is newer than what's already
// published. Checkpoints must be published in increasing index order;
// publishing a lower index than the current latest is accepted (the
// entry is written) but does not move the latest pointer backward.
func (s *Store) Publish(ctx context.Context, e Entry) error {
	body, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal entry: %w", err)
	}
	if err := s.syncer.Write(ctx, pathForIndex(e.Checkpoint.Index), body); err != nil {
		return fmt.Errorf("checkpoint: write entry %d: %w", e.Checkpoint.Index, err)
	}

	current, err := s.LatestIndex(ctx)
	if err != nil && err != ErrNoCheckpoints {
		return fmt.Errorf("checkpoint: read latest index: %w", err)
	}
	if err == ErrNoCheckpoints || e.Checkpoint.Index > current {
		latest := LatestIndex{Index: e.Checkpoint.Index}
		latestBody, merr := json.Marshal(latest)
		if merr != nil {
			return fmt.Errorf("checkpoint: marshal latest index: %w", merr)
		}
		if werr := s.syncer.Write(ctx, pathLatestIndex, latestBody); werr != nil {
			return fmt.Errorf("checkpoint: write latest index: %w", werr)
		}
	}
	return nil
}

// ErrNoCheckpoints is returned by LatestIndex before the first checkpoint
// has ever been published.
var ErrNoCheckpoints = fmt.Errorf("checkpoint: no checkpoints published yet")

// LatestIndex reads the latest published checkpoint index.
func (s *Store) LatestIndex(ctx context.Context) (uint32, error) {
	ok, err := s.syncer.Exists(ctx, pathLatestIndex)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoCheckpoints
	}
	body, err := s.syncer.Read(ctx, pathLatestIndex)
	if err != nil {
		return 0, err
	}
	var li LatestIndex
	if err := json.Unmarshal(body, &li); err != nil {
		return 0, fmt.Errorf("checkpoint: unmarshal latest index: %w", err)
	}
	return li.Index, nil
}

// Get reads one published checkpoint entry by index.
func (s *Store) Get(ctx context.Context, index uint32) (Entry, error) {
	var e Entry
	ok, err := s.syncer.Exists(ctx, pathForIndex(index))
	if err != nil {
		return e, err
	}
	if !ok {
		return e, fmt.Errorf("checkpoint: index %d not found", index)
	}
	body, err := s.syncer.Read(ctx, pathForIndex(index))
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("checkpoint: unmarshal entry %d: %w", index, err)
	}
	return e, nil
}

// GetAnnouncement reads a validator's fixed-path announcement document.
func (s *Store) GetAnnouncement(ctx context.Context) (Announcement, error) {
	var a Announcement
	body, err := s.syncer.Read(ctx, pathAnnouncement)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(body, &a); err != nil {
		return a, fmt.Errorf("checkpoint: unmarshal announcement: %w", err)
	}
	return a, nil
}
