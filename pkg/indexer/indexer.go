// Copyright 2025 Certen Protocol
//
// Indexer polls a chain.Adapter for Dispatch/Process/MerkleInsertion/
// GasPayment events over a sliding window, in the same poll-ticker shape
// pkg/anchor's EventWatcher uses, generalized to:
//   - a forward (tip-following) or backward (historical backfill) direction
//   - adaptive window sizing: double the window on an empty poll, halve it
//     on a provider error, bounded by [minWindow, maxWindow]
//   - dedup by (block, tx hash, log index) across adjacent polls, since a
//     provider may replay the tail of the previous window
//   - durable cursor state via pkg/store, so a restart resumes instead of
//     re-scanning from a lookback window
//
// A sequence regression (a later poll reporting a lower dispatch nonce
// than the indexer already recorded for that origin) is treated as fatal:
// it almost always means the provider rolled back without the indexer
// being told about a reorg, and continuing would silently skip messages.

package indexer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/certen/interchain-agent/pkg/agentd/errors"
	"github.com/certen/interchain-agent/pkg/agentd/logging"
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/store"
)

// Config tunes one indexing task's polling and window behavior.
type Config struct {
	ChainName       string
	EventType       chain.EventType
	ContractAddress chain.LogFilter
	Direction       store.CursorDirection
	PollInterval    time.Duration
	MinWindow       uint64
	MaxWindow       uint64
	StartWindow     uint64
	FinalityLag     uint64 // blocks held back from the chain tip before indexing
	RetryAttempts   int
	RetryDelay      time.Duration
}

// DefaultConfig mirrors the poll cadence and retry shape used elsewhere in
// this codebase's chain-polling components.
func DefaultConfig() Config {
	return Config{
		Direction:     store.CursorForward,
		PollInterval:  15 * time.Second,
		MinWindow:     10,
		MaxWindow:     2000,
		StartWindow:   100,
		FinalityLag:   0,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// Handler processes one batch of newly indexed, deduplicated, order-sorted
// events. Returning an error halts the poll loop's progress for this
// cycle without advancing the cursor, so the same window retries next
// tick.
type Handler func(ctx context.Context, batch []chain.Indexed) error

// Indexer drives one (chain, event type) polling task.
type Indexer struct {
	cfg     Config
	adapter chain.Adapter
	store   *store.Store
	handler Handler
	logger  *log.Logger

	window uint64
	seen   map[seenKey]struct{}
	seenQ  []seenKey // FIFO eviction order, bounded

	// haveLastNonce/lastNonce track the dispatch nonce last observed for
	// this chain's own domain (a Dispatch event's origin is always the
	// chain the indexer is attached to).
	haveLastNonce bool
	lastNonce     uint32
}

type seenKey struct {
	block    uint64
	txHash   [32]byte
	logIndex uint32
}

const seenWindowCap = 20000

// New constructs an Indexer for one chain/event-type polling task.
func New(cfg Config, adapter chain.Adapter, st *store.Store, handler Handler) *Indexer {
	if cfg.PollInterval == 0 {
		d := DefaultConfig()
		cfg.PollInterval = d.PollInterval
		cfg.MinWindow = d.MinWindow
		cfg.MaxWindow = d.MaxWindow
		cfg.StartWindow = d.StartWindow
		cfg.RetryAttempts = d.RetryAttempts
		cfg.RetryDelay = d.RetryDelay
	}
	return &Indexer{
		cfg:     cfg,
		adapter: adapter,
		store:   st,
		handler: handler,
		logger:  logging.New(fmt.Sprintf("indexer.%s.%s", cfg.ChainName, cfg.EventType)),
		window:  cfg.StartWindow,
		seen:    make(map[seenKey]struct{}),
	}
}

// Run polls until ctx is canceled.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.restoreCursor(); err != nil {
		return fmt.Errorf("indexer %s/%s: restore cursor: %w", ix.cfg.ChainName, ix.cfg.EventType, err)
	}

	ticker := time.NewTicker(ix.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ix.pollOnce(ctx); err != nil {
				class := errors.Classify(err)
				ix.logger.Printf("poll error (kind=%s retry=%v): %v", class.Kind, class.Retry, err)
				if !class.Retry {
					return err
				}
				ix.shrinkWindow()
			}
		}
	}
}

func (ix *Indexer) restoreCursor() error {
	state, err := ix.store.GetCursorState(ix.cfg.ChainName, string(ix.cfg.EventType))
	if err == store.ErrNotFound {
		state = store.CursorState{
			LastSyncedBlock:       0,
			Direction:             ix.cfg.Direction,
			LowestBlockConfigured: 0,
		}
		return ix.store.PutCursorState(ix.cfg.ChainName, string(ix.cfg.EventType), state)
	}
	if err != nil {
		return err
	}
	ix.haveLastNonce = true
	ix.lastNonce = state.SequenceFrontier
	return nil
}

// pollOnce fetches one window's worth of logs, dedups and orders them,
// invokes the handler, and persists the advanced cursor.
func (ix *Indexer) pollOnce(ctx context.Context) error {
	state, err := ix.store.GetCursorState(ix.cfg.ChainName, string(ix.cfg.EventType))
	if err != nil && err != store.ErrNotFound {
		return err
	}

	tip, err := ix.adapter.LatestFinalizedBlock(ctx)
	if err != nil {
		return fmt.Errorf("latest finalized block: %w", err)
	}
	if tip < ix.cfg.FinalityLag {
		return nil
	}
	tip -= ix.cfg.FinalityLag

	from := state.LastSyncedBlock + 1
	if from > tip {
		return nil // caught up, nothing new
	}

	to := from + ix.window - 1
	if to > tip {
		to = tip
	}

	var indexed []chain.Indexed
	for attempt := 0; attempt < ix.cfg.RetryAttempts; attempt++ {
		indexed, err = ix.adapter.FetchLogs(ctx, chain.BlockRange{From: from, To: to}, ix.cfg.ContractAddress)
		if err == nil {
			break
		}
		if attempt < ix.cfg.RetryAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ix.cfg.RetryDelay):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("fetch logs [%d,%d]: %w", from, to, err)
	}

	fresh := ix.dedup(indexed)
	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].Block != fresh[j].Block {
			return fresh[i].Block < fresh[j].Block
		}
		return fresh[i].IndexWithinBlock < fresh[j].IndexWithinBlock
	})

	if err := ix.checkSequence(fresh); err != nil {
		return err // fatal: caller's Classify marks this non-retryable
	}

	if len(fresh) > 0 {
		if err := ix.handler(ctx, fresh); err != nil {
			return fmt.Errorf("handler: %w", err)
		}
	} else {
		ix.growWindow()
	}

	state.LastSyncedBlock = to
	state.Direction = ix.cfg.Direction
	if ix.haveLastNonce {
		state.SequenceFrontier = ix.lastNonce
	}
	if err := ix.store.PutCursorState(ix.cfg.ChainName, string(ix.cfg.EventType), state); err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}
	return nil
}

// dedup filters out events already seen in a prior poll (a provider may
// re-return the tail of the previous window) and records the new ones in
// a bounded FIFO set.
func (ix *Indexer) dedup(in []chain.Indexed) []chain.Indexed {
	out := make([]chain.Indexed, 0, len(in))
	for _, ev := range in {
		k := seenKey{block: ev.Block, txHash: [32]byte(ev.TxHash), logIndex: ev.LogIndex}
		if _, ok := ix.seen[k]; ok {
			continue
		}
		ix.seen[k] = struct{}{}
		ix.seenQ = append(ix.seenQ, k)
		if len(ix.seenQ) > seenWindowCap {
			evict := ix.seenQ[0]
			ix.seenQ = ix.seenQ[1:]
			delete(ix.seen, evict)
		}
		out = append(out, ev)
	}
	return out
}

// checkSequence enforces that dispatch nonces observed for this chain's
// own domain never move backward within or across polls.
func (ix *Indexer) checkSequence(batch []chain.Indexed) error {
	for _, ev := range batch {
		if ev.Event.Type != chain.EventDispatch || ev.Event.Dispatch == nil {
			continue
		}
		nonce := ev.Event.Dispatch.Message.Nonce
		if ix.haveLastNonce && nonce < ix.lastNonce {
			gap := fmt.Errorf("%w: origin %d nonce regressed from %d to %d",
				errors.ErrSequenceGap, ev.Event.Dispatch.Message.Origin, ix.lastNonce, nonce)
			return errors.Tagged(errors.KindChainReorg, "fatal.sequence_gap", gap)
		}
		ix.haveLastNonce = true
		ix.lastNonce = nonce
	}
	return nil
}

func (ix *Indexer) growWindow() {
	ix.window *= 2
	if ix.window > ix.cfg.MaxWindow {
		ix.window = ix.cfg.MaxWindow
	}
}

func (ix *Indexer) shrinkWindow() {
	ix.window /= 2
	if ix.window < ix.cfg.MinWindow {
		ix.window = ix.cfg.MinWindow
	}
}
