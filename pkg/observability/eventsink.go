// Copyright 2025 Certen Protocol
//
// Optional SQL event sink: an append-only table of submitted/dropped
// message records for operators who want local SQL-queryable history
// without standing up a separate scraper. A disabled sink is a silent
// no-op the same way checkpoint.FirestoreMirror is, so the relayer never
// requires a database connection to run.

package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/certen/interchain-agent/pkg/agentd/logging"
)

// EventRecord is one message outcome; the relayer records "submitted"
// and "dropped".
type EventRecord struct {
	MessageID     string
	CorrelationID string
	Origin        string
	Destination   string
	Outcome       string // free-form; the relayer writes "submitted" or "dropped"
	Reason        string // drop reason, empty for submitted
}

// EventSink writes EventRecords to Postgres. A sink built with an empty
// DatabaseURL is disabled and Record becomes a no-op.
type EventSink struct {
	db      *sql.DB
	enabled bool
	logger  *log.Logger
}

const createEventTableSQL = `
CREATE TABLE IF NOT EXISTS relayer_message_events (
	id SERIAL PRIMARY KEY,
	message_id TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	origin TEXT NOT NULL,
	destination TEXT NOT NULL,
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewEventSink opens a Postgres connection and ensures the event table
// exists. An empty databaseURL returns a disabled sink rather than an
// error — required-vs-optional is the caller's decision (see
// Config.DatabaseRequired), not this constructor's.
func NewEventSink(databaseURL string) (*EventSink, error) {
	s := &EventSink{logger: logging.New("observability.eventsink")}
	if databaseURL == "" {
		s.logger.Println("sql event sink disabled - running in no-op mode")
		return s, nil
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("observability: open sql event sink: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("observability: ping sql event sink: %w", err)
	}
	if _, err := db.Exec(createEventTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("observability: create event table: %w", err)
	}

	s.db = db
	s.enabled = true
	return s, nil
}

// Record inserts one message outcome. A disabled sink returns nil
// without touching the network.
func (s *EventSink) Record(ctx context.Context, rec EventRecord) error {
	if !s.enabled {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relayer_message_events (message_id, correlation_id, origin, destination, outcome, reason)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.MessageID, rec.CorrelationID, rec.Origin, rec.Destination, rec.Outcome, rec.Reason)
	if err != nil {
		return fmt.Errorf("observability: insert event record: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool, if one was opened.
func (s *EventSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
