// Copyright 2025 Certen Protocol
//
// Error taxonomy shared across the indexer, pipeline, lander and ISM
// builder. Every package-local sentinel error should classify into one of
// the Kinds below so retry policy and metrics stay centralized.

package errors

import (
	"errors"
	"fmt"
)

// Kind is the top-level error taxonomy used for retry/propagation
// decisions throughout the agent network.
type Kind string

const (
	// KindTransient covers network errors, HTTP 429, connection resets.
	// Retry with exponential backoff (min 1s, max 60s); rotate provider
	// after 3 consecutive occurrences.
	KindTransient Kind = "transient"

	// KindProviderPoisoned covers a null receipt for a known-included
	// tx, malformed JSON, or a chain-id mismatch. Deprioritize and
	// rotate the offending provider immediately.
	KindProviderPoisoned Kind = "provider_poisoned"

	// KindChainReorg covers a sequence regression in indexed merkle
	// insertions. Fatal: write reorg_flag.json and exit non-zero.
	KindChainReorg Kind = "chain_reorg"

	// KindMalformedMessage covers an oversized body, a nonce gap, or
	// otherwise impossible message fields. The message is marked
	// Dropped; the process continues.
	KindMalformedMessage Kind = "malformed_message"

	// KindMetadataRejected covers an ISM metadata simulation returning
	// false. Retry up to N_meta attempts, then move to Stuck.
	KindMetadataRejected Kind = "metadata_rejected"

	// KindUnderfunded covers a gas-payment policy that is not yet
	// satisfied. The message is Deferred with exponential backoff.
	KindUnderfunded Kind = "underfunded"

	// KindSubmissionReverted covers a non-trivial on-chain revert of a
	// submitted transaction. Surfaced, retried up to N_submit.
	KindSubmissionReverted Kind = "submission_reverted"

	// KindFatal covers disk full, signer unavailable, invalid config.
	// The process logs a stable tag and exits non-zero.
	KindFatal Kind = "fatal"
)

// TaggedError carries a stable exit tag alongside a Kind, used for the
// process-level fatal exit path so operators can alert on a fixed string
// instead of parsing free-form error text.
type TaggedError struct {
	Kind Kind
	Tag  string
	Err  error
}

func (e *TaggedError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Tag, e.Kind, e.Err)
}

func (e *TaggedError) Unwrap() error { return e.Err }

// Tagged wraps err with a stable CLI exit tag, e.g. "fatal.sequence_gap",
// under the given Kind. Classify reads the Kind back off the wrapper, so
// wrapping an error this way never changes how it is classified — it only
// attaches the tag a caller surfaces on its fatal exit path.
func Tagged(kind Kind, tag string, err error) *TaggedError {
	return &TaggedError{Kind: kind, Tag: tag, Err: err}
}

// Common sentinels reused across packages.
var (
	ErrRevertWith      = errors.New("chain adapter: transaction reverted")
	ErrAlreadyPoisoned = errors.New("chain adapter: provider already poisoned")
	ErrSequenceGap     = errors.New("indexer: merkle insertion sequence gap")
	ErrDispatchOrder   = errors.New("indexer: DispatchId observed without preceding Dispatch")
	ErrNotAdmitted     = errors.New("pipeline: message rejected by whitelist/blacklist policy")
	ErrUnderfunded     = errors.New("pipeline: gas payment policy not yet satisfied")
	ErrBodyTooLarge    = errors.New("pipeline: message body exceeds configured maximum")
)

// Classification carries the Kind decided for a raw error, whether the
// caller should retry, and a short message describing the decision.
type Classification struct {
	Kind    Kind
	Retry   bool
	Message string
}

// Classify maps a raw adapter/driver error onto the taxonomy above. It is
// intentionally conservative: anything unrecognized is Transient so a
// one-off hiccup never escalates to Fatal by accident.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: "", Retry: false}
	}

	var tagged *TaggedError
	if errors.As(err, &tagged) {
		return Classification{Kind: tagged.Kind, Retry: false, Message: tagged.Error()}
	}

	switch {
	case errors.Is(err, ErrSequenceGap), errors.Is(err, ErrDispatchOrder):
		return Classification{Kind: KindChainReorg, Retry: false, Message: err.Error()}
	case errors.Is(err, ErrAlreadyPoisoned):
		return Classification{Kind: KindProviderPoisoned, Retry: true, Message: err.Error()}
	case errors.Is(err, ErrRevertWith):
		return Classification{Kind: KindSubmissionReverted, Retry: true, Message: err.Error()}
	case errors.Is(err, ErrNotAdmitted), errors.Is(err, ErrBodyTooLarge):
		return Classification{Kind: KindMalformedMessage, Retry: false, Message: err.Error()}
	case errors.Is(err, ErrUnderfunded):
		return Classification{Kind: KindUnderfunded, Retry: true, Message: err.Error()}
	default:
		return Classification{Kind: KindTransient, Retry: true, Message: err.Error()}
	}
}
