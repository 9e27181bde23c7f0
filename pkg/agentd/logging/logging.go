// Copyright 2025 Certen Protocol
//
// Component-scoped logging helpers.
//
// Every long-lived component (indexer, pipeline, lander, checkpoint
// syncer, scheduler) gets its own bracket-prefixed *log.Logger rather than
// a shared structured-logging handle. Fields like origin/destination/
// message id are rendered inline by callers.

package logging

import (
	"fmt"
	"log"
	"os"
)

// New returns a logger prefixed with the given component name, e.g.
// "[indexer:ethereum-mainnet] ".
func New(component string) *log.Logger {
	return log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags|log.Lmicroseconds)
}

// Span is the set of structured fields attached to a log line or metric
// observation for one unit of work moving through the network.
//
// CorrelationID is assigned once, at pipeline admission, and carried
// unchanged through every later span for the same message — the lander,
// the confirmation poller and the observability handlers all log it so
// one delivery attempt can be grepped end to end across components.
type Span struct {
	Origin        string
	Destination   string
	MessageID     string
	CorrelationID string
	Nonce         uint32
	Attempt       int
	Stage         string
}

// String renders a span as a compact key=value suffix for a log line.
func (s Span) String() string {
	return fmt.Sprintf("origin=%s destination=%s message_id=%s correlation_id=%s nonce=%d attempt=%d stage=%s",
		s.Origin, s.Destination, s.MessageID, s.CorrelationID, s.Nonce, s.Attempt, s.Stage)
}
