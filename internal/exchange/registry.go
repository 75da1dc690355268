package exchange

import (
	"fmt"
	"sync"

	"github.com/bonsaidca/bonsai/internal/types"
)

// Factory builds a Client bound to one credential.
type Factory func(credential *types.Credential) Client

// Registry maps exchange identifiers to client factories. Adding an exchange
// means registering an implementation, not branching on the identifier.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for an exchange identifier, replacing any
// previous registration.
func (r *Registry) Register(exchange string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[exchange] = factory
}

// ClientFor builds a client for the credential's exchange.
func (r *Registry) ClientFor(credential *types.Credential) (Client, error) {
	r.mu.RLock()
	factory, ok := r.factories[credential.Exchange]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, credential.Exchange)
	}
	return factory(credential), nil
}
