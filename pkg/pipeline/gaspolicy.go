// Copyright 2025 Certen Protocol
//
// Gas payment policy: decides whether a message's accrued IGP payments
// satisfy the configured enforcement mode before the pipeline lets it
// proceed to submission. Mirrors the three-mode switch
// ("none"/"minimum"/"onChainFeeQuoting") RelayerConfig.GasPaymentEnforcement
// names, the same flat config-driven feature-gate idiom as
// DatabaseRequired in main.go, generalized to a per-message decision.

package pipeline

import (
	"context"
	"fmt"
	"math/big"

	"github.com/certen/interchain-agent/pkg/agentd/config"
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/message"
	"github.com/certen/interchain-agent/pkg/store"
)

// StoreGasPolicy implements GasPolicy against the persistent store's
// accumulated gas payment records.
type StoreGasPolicy struct {
	cfg   config.RelayerConfig
	store *store.Store
}

// NewStoreGasPolicy constructs a GasPolicy reading from st.
func NewStoreGasPolicy(cfg config.RelayerConfig, st *store.Store) *StoreGasPolicy {
	return &StoreGasPolicy{cfg: cfg, store: st}
}

// Sufficient reports whether id's accrued gas payments satisfy this
// policy's enforcement mode. "none" always passes; "minimum" requires the
// summed payment to meet a configured floor; "onChainFeeQuoting" requires
// the summed gas amount paid for to meet or exceed the estimatedGas the
// caller passes. destination is not consulted; no live fee quote is read.
func (p *StoreGasPolicy) Sufficient(ctx context.Context, id message.Hash, destination chain.Adapter, estimatedGas uint64) (bool, error) {
	switch p.cfg.GasPaymentEnforcement {
	case "", "none":
		return true, nil
	}

	records, err := p.store.GasPaymentsForMessage(id)
	if err != nil {
		return false, fmt.Errorf("pipeline: load gas payments for %s: %w", id, err)
	}

	totalPayment := new(big.Int)
	totalGas := new(big.Int)
	for _, r := range records {
		if v, ok := new(big.Int).SetString(r.Payment, 10); ok {
			totalPayment.Add(totalPayment, v)
		}
		if v, ok := new(big.Int).SetString(r.GasAmount, 10); ok {
			totalGas.Add(totalGas, v)
		}
	}

	switch p.cfg.GasPaymentEnforcement {
	case "minimum":
		minimum := new(big.Int).SetUint64(p.cfg.GasPaymentMinimum)
		return totalPayment.Cmp(minimum) >= 0, nil
	case "onChainFeeQuoting":
		return totalGas.Cmp(new(big.Int).SetUint64(estimatedGas)) >= 0, nil
	default:
		return false, fmt.Errorf("pipeline: unknown gas payment enforcement mode %q", p.cfg.GasPaymentEnforcement)
	}
}
