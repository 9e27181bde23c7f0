// Copyright 2025 Certen Protocol

package checkpoint

import (
	"context"
	"testing"
)

func TestFirestoreMirror_DisabledIsNoOp(t *testing.T) {
	m, err := NewFirestoreMirror(context.Background(), FirestoreMirrorConfig{Enabled: false}, "validator-1")
	if err != nil {
		t.Fatalf("unexpected error building a disabled mirror: %v", err)
	}
	defer m.Close()

	if err := m.Record(context.Background(), entryAt(0)); err != nil {
		t.Fatalf("Record on a disabled mirror must be a no-op, got: %v", err)
	}
}

func TestFirestoreMirror_EnabledWithoutProjectIDErrors(t *testing.T) {
	_, err := NewFirestoreMirror(context.Background(), FirestoreMirrorConfig{Enabled: true}, "validator-1")
	if err == nil {
		t.Fatal("expected an error when enabled without a ProjectID")
	}
}

func TestFirestoreMirror_DefaultsCollectionName(t *testing.T) {
	m, err := NewFirestoreMirror(context.Background(), FirestoreMirrorConfig{Enabled: false}, "validator-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.collection != "checkpoints" {
		t.Fatalf("collection = %s, want default checkpoints", m.collection)
	}
}
