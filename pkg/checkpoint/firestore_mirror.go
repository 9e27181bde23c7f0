// Copyright 2025 Certen Protocol
//
// Optional Firestore mirror of published checkpoints, for operators who
// want to query checkpoint history without walking the object store.
// A disabled mirror is a silent no-op rather than an error, so local development never needs GCP
// credentials.

package checkpoint

import (
	"context"
	"fmt"
	"log"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/certen/interchain-agent/pkg/agentd/logging"
)

// FirestoreMirrorConfig configures the optional mirror.
type FirestoreMirrorConfig struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Collection      string // defaults to "checkpoints"
}

// FirestoreMirror writes a copy of every published Entry into Firestore
// under <Collection>/<validator>/entries/<index>.
type FirestoreMirror struct {
	mu         sync.RWMutex
	app        *firebase.App
	firestore  *gcpfirestore.Client
	collection string
	validator  string
	enabled    bool
	logger     *log.Logger
}

// NewFirestoreMirror dials Firestore when enabled; when disabled it
// returns a mirror whose Record calls are no-ops.
func NewFirestoreMirror(ctx context.Context, cfg FirestoreMirrorConfig, validator string) (*FirestoreMirror, error) {
	m := &FirestoreMirror{
		collection: cfg.Collection,
		validator:  validator,
		enabled:    cfg.Enabled,
		logger:     logging.New("checkpoint.firestore_mirror"),
	}
	if m.collection == "" {
		m.collection = "checkpoints"
	}
	if !cfg.Enabled {
		m.logger.Println("firestore mirror disabled - running in no-op mode")
		return m, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("checkpoint: firestore mirror enabled but ProjectID is empty")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: init firebase app: %w", err)
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: init firestore client: %w", err)
	}
	m.app = app
	m.firestore = fs
	return m, nil
}

// Record writes one entry's checkpoint metadata into Firestore. A
// disabled mirror returns nil without touching the network.
func (m *FirestoreMirror) Record(ctx context.Context, e Entry) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.enabled {
		return nil
	}
	doc := m.firestore.Collection(m.collection).Doc(m.validator).
		Collection("entries").Doc(fmt.Sprintf("%d", e.Checkpoint.Index))
	_, err := doc.Set(ctx, map[string]interface{}{
		"index":      e.Checkpoint.Index,
		"root":       e.Checkpoint.Root.String(),
		"mailbox":    e.Checkpoint.MerkleTreeAddress.String(),
		"signature":  e.Signature,
	})
	if err != nil {
		return fmt.Errorf("checkpoint: firestore record: %w", err)
	}
	return nil
}

// Close releases the underlying Firestore client, if one was opened.
func (m *FirestoreMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.firestore != nil {
		return m.firestore.Close()
	}
	return nil
}
