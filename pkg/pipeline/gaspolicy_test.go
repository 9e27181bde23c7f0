// Copyright 2025 Certen Protocol

package pipeline

import (
	"context"
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/interchain-agent/pkg/agentd/config"
	"github.com/certen/interchain-agent/pkg/message"
	"github.com/certen/interchain-agent/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(dbm.NewMemDB())
}

func TestStoreGasPolicy_NoneAlwaysSufficient(t *testing.T) {
	st := newTestStore(t)
	p := NewStoreGasPolicy(config.RelayerConfig{GasPaymentEnforcement: "none"}, st)

	ok, err := p.Sufficient(context.Background(), message.Hash{0x01}, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected none mode to always be sufficient")
	}
}

func TestStoreGasPolicy_MinimumRequiresFloor(t *testing.T) {
	st := newTestStore(t)
	id := message.Hash{0x02}
	p := NewStoreGasPolicy(config.RelayerConfig{GasPaymentEnforcement: "minimum", GasPaymentMinimum: 1000}, st)

	ok, err := p.Sufficient(context.Background(), id, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected insufficient with no payments recorded")
	}

	if err := st.AppendGasPayment(id, 0, store.GasPaymentRecord{Payment: "1000", GasAmount: "50000"}); err != nil {
		t.Fatalf("append gas payment: %v", err)
	}

	ok, err = p.Sufficient(context.Background(), id, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected sufficient once payment meets the configured minimum")
	}
}

func TestStoreGasPolicy_OnChainFeeQuotingComparesGasAmount(t *testing.T) {
	st := newTestStore(t)
	id := message.Hash{0x03}
	p := NewStoreGasPolicy(config.RelayerConfig{GasPaymentEnforcement: "onChainFeeQuoting"}, st)

	if err := st.AppendGasPayment(id, 0, store.GasPaymentRecord{Payment: "1", GasAmount: "21000"}); err != nil {
		t.Fatalf("append gas payment: %v", err)
	}

	ok, err := p.Sufficient(context.Background(), id, nil, 30000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected insufficient when paid-for gas is below the estimate")
	}

	ok, err = p.Sufficient(context.Background(), id, nil, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected sufficient once paid-for gas covers the estimate")
	}
}

func TestStoreGasPolicy_UnknownModeErrors(t *testing.T) {
	st := newTestStore(t)
	p := NewStoreGasPolicy(config.RelayerConfig{GasPaymentEnforcement: "bogus"}, st)

	if _, err := p.Sufficient(context.Background(), message.Hash{0x04}, nil, 0); err == nil {
		t.Fatal("expected an error for an unrecognized enforcement mode")
	}
}
