// Copyright 2025 Certen Protocol
//
// Protocol -> factory registry. Avoids deep inheritance: each protocol
// registers a constructor, and callers ask the registry for an Adapter by
// protocol name rather than switching on a type hierarchy.

package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/interchain-agent/pkg/agentd/config"
	"github.com/certen/interchain-agent/pkg/domain"
)

// Factory builds an Adapter for one chain from its configuration.
type Factory func(ctx context.Context, name string, cfg config.ChainConfig, d domain.Domain) (Adapter, error)

// Registry holds one Factory per protocol.
type Registry struct {
	mu        sync.RWMutex
	factories map[Protocol]Factory
}

// NewRegistry returns an empty registry; callers populate it with Register
// before building adapters.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Protocol]Factory)}
}

// Register associates a protocol name with a Factory. Registering the
// same protocol twice replaces the previous factory, which is useful in
// tests that want to swap in a fake adapter.
func (r *Registry) Register(p Protocol, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[p] = f
}

// Build constructs an Adapter for the given chain configuration, looking
// up the factory by cfg.Protocol.
func (r *Registry) Build(ctx context.Context, name string, cfg config.ChainConfig, d domain.Domain) (Adapter, error) {
	p := Protocol(cfg.Protocol)
	if !p.IsValid() {
		return nil, fmt.Errorf("chain registry: unknown protocol %q for chain %q", cfg.Protocol, name)
	}

	r.mu.RLock()
	factory, ok := r.factories[p]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chain registry: no adapter factory registered for protocol %q", p)
	}

	return factory(ctx, name, cfg, d)
}

// Registered reports which protocols currently have a factory.
func (r *Registry) Registered() []Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Protocol, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	return out
}
