package forge

import (
	"sync"

	perr "starchart/internal/platform/errors"
)

// Constructor builds a Client for one descriptor
type Constructor func(Descriptor) (Client, error)

// Registry maps forge kinds to client constructors
// Clients built from it are shared handles: holders copy the interface value,
// never the underlying connection state
type Registry struct {
	mu   sync.RWMutex
	ctor map[Kind]Constructor
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{ctor: make(map[Kind]Constructor)}
}

// Register adds or replaces the constructor for a kind
func (r *Registry) Register(k Kind, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctor[k] = c
}

// New constructs a client for the descriptor's kind
// Unknown kinds are an invalid argument, not a panic
func (r *Registry) New(d Descriptor) (Client, error) {
	r.mu.RLock()
	c, ok := r.ctor[d.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, perr.InvalidArgf("unknown forge kind %q", d.Kind)
	}
	return c(d)
}

// Kinds lists the registered kinds
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.ctor))
	for k := range r.ctor {
		out = append(out, k)
	}
	return out
}
