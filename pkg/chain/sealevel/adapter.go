// Copyright 2025 Certen Protocol
//
// Solana/Sealevel chain adapter registration. The RPC integration itself
// is an external collaborator's concern; only the factory registration
// against the shared stub lives here.

package sealevel

import (
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/chain/stub"
)

// Factory is registered under chain.ProtocolSealevel.
var Factory = stub.New(chain.ProtocolSealevel)
