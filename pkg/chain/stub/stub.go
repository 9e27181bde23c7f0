// Copyright 2025 Certen Protocol
//
// Stub chain adapters for protocols whose RPC integration is out of
// scope here — only the trait contract (chain.Adapter) is specified.
// Cosmos, Sealevel, Starknet and Aleo adapters register against this stub
// so the protocol -> factory registry can build an adapter for every
// configured protocol; every data-plane call on a stub adapter returns an
// error.

package stub

import (
	"context"
	"fmt"

	"github.com/certen/interchain-agent/pkg/agentd/config"
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/domain"
	"github.com/certen/interchain-agent/pkg/message"
)

// Adapter satisfies chain.Adapter for a protocol with no concrete RPC
// integration. Every data-plane method returns an error identifying the
// gap explicitly rather than silently no-op'ing, so a misconfiguration
// surfaces immediately instead of behaving like an empty chain.
type Adapter struct {
	protocol chain.Protocol
	name     string
	dom      domain.Domain
}

// New constructs the factory function for the chain.Registry to register
// under a given protocol.
func New(protocol chain.Protocol) chain.Factory {
	return func(_ context.Context, name string, cfg config.ChainConfig, d domain.Domain) (chain.Adapter, error) {
		return &Adapter{protocol: protocol, name: name, dom: d}, nil
	}
}

func (a *Adapter) Protocol() chain.Protocol { return a.protocol }
func (a *Adapter) Domain() domain.Domain    { return a.dom }
func (a *Adapter) NetworkName() string      { return a.name }

func (a *Adapter) errNotImplemented(op string) error {
	return fmt.Errorf("chain %s (%s): %s requires a protocol-specific RPC adapter, which is out of scope for this network's trait contract", a.name, a.protocol, op)
}

func (a *Adapter) FetchLogs(context.Context, chain.BlockRange, chain.LogFilter) ([]chain.Indexed, error) {
	return nil, a.errNotImplemented("FetchLogs")
}

func (a *Adapter) LatestFinalizedBlock(context.Context) (uint64, error) {
	return 0, a.errNotImplemented("LatestFinalizedBlock")
}

func (a *Adapter) CallView(context.Context, message.Address32, []byte) ([]byte, error) {
	return nil, a.errNotImplemented("CallView")
}

func (a *Adapter) EstimateGas(context.Context, chain.Tx) (uint64, error) {
	return 0, a.errNotImplemented("EstimateGas")
}

func (a *Adapter) Submit(context.Context, chain.Tx) (chain.TxHandle, error) {
	return chain.TxHandle{}, a.errNotImplemented("Submit")
}

func (a *Adapter) TxStatus(context.Context, chain.TxHandle) (chain.TxStatus, error) {
	return chain.TxStatus{}, a.errNotImplemented("TxStatus")
}

func (a *Adapter) RecipientISM(context.Context, message.Address32) (message.Address32, error) {
	return message.Address32{}, a.errNotImplemented("RecipientISM")
}

func (a *Adapter) Delivered(context.Context, message.Hash) (bool, error) {
	return false, a.errNotImplemented("Delivered")
}

func (a *Adapter) Health(context.Context) error {
	return a.errNotImplemented("Health")
}
