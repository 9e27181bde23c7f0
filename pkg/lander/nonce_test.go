// Copyright 2025 Certen Protocol

package lander

import (
	"context"
	"testing"
)

type fakeNonceSource struct {
	nonce uint64
	err   error
}

func (f *fakeNonceSource) PendingNonce(ctx context.Context) (uint64, error) {
	return f.nonce, f.err
}

func TestNonceManager_ReserveSkipsPending(t *testing.T) {
	src := &fakeNonceSource{nonce: 5}
	m := NewNonceManager("testchain", src)

	first, err := m.Reserve(context.Background())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if first != 5 {
		t.Fatalf("first reservation = %d, want 5", first)
	}

	second, err := m.Reserve(context.Background())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if second != 6 {
		t.Fatalf("second reservation = %d, want 6 (first is still reserved)", second)
	}
}

func TestNonceManager_MarkFailedFreesNonceForReuse(t *testing.T) {
	src := &fakeNonceSource{nonce: 0}
	m := NewNonceManager("testchain", src)

	n, err := m.Reserve(context.Background())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	m.MarkFailed(n)

	again, err := m.Reserve(context.Background())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if again != n {
		t.Fatalf("expected failed nonce %d to be reusable, got %d", n, again)
	}
}

func TestNonceManager_MarkConfirmedAdvancesFloor(t *testing.T) {
	src := &fakeNonceSource{nonce: 0}
	m := NewNonceManager("testchain", src)

	n, err := m.Reserve(context.Background())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	m.MarkSubmitted(n)
	m.MarkConfirmed(n)

	next, err := m.Reserve(context.Background())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if next != n+1 {
		t.Fatalf("expected floor to advance past confirmed nonce %d, got %d", n, next)
	}
}

func TestNonceManager_RefusesBeyondMaxPending(t *testing.T) {
	src := &fakeNonceSource{nonce: 0}
	m := NewNonceManager("testchain", src)
	m.maxPending = 2

	if _, err := m.Reserve(context.Background()); err != nil {
		t.Fatalf("reserve 1: %v", err)
	}
	if _, err := m.Reserve(context.Background()); err != nil {
		t.Fatalf("reserve 2: %v", err)
	}
	if _, err := m.Reserve(context.Background()); err == nil {
		t.Fatal("expected an error once pending reservations reach maxPending")
	}
}
