// Copyright 2025 Certen Protocol
//
// Cosmos SDK chain adapter registration. The RPC integration itself
// (CosmWasm query client, Tendermint RPC) is an external collaborator's
// concern — only the factory registration against the shared stub lives
// here.

package cosmos

import (
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/chain/stub"
)

// Factory is registered under chain.ProtocolCosmos.
var Factory = stub.New(chain.ProtocolCosmos)
