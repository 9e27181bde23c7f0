// Copyright 2025 Certen Protocol
//
// Aleo chain adapter registration. The RPC integration itself is an
// external collaborator's concern; only the factory registration against
// the shared stub lives here.

package aleo

import (
	"github.com/certen/interchain-agent/pkg/chain"
	"github.com/certen/interchain-agent/pkg/chain/stub"
)

// Factory is registered under chain.ProtocolAleo.
var Factory = stub.New(chain.ProtocolAleo)
