package core

import (
	"sync"
	"sync/atomic"

	"github.com/najoast/catalog/ledger"
)

// router implements the Router interface.
type router struct {
	// Map of address to Actor instance
	actors sync.Map // map[ledger.Address]Actor

	count atomic.Int64
}

// NewRouter creates a new Router instance.
func NewRouter() Router {
	return &router{}
}

// Register adds an Actor to the routing table. Concurrent registrations of
// the same address collapse onto the first one stored.
func (r *router) Register(actor Actor) (Actor, bool) {
	existing, loaded := r.actors.LoadOrStore(actor.Address(), actor)
	if loaded {
		return existing.(Actor), true
	}
	r.count.Add(1)
	return actor, false
}

// Lookup finds an Actor by its address.
func (r *router) Lookup(addr ledger.Address) (Actor, bool) {
	if actor, exists := r.actors.Load(addr); exists {
		return actor.(Actor), true
	}
	return nil, false
}

// List returns all registered addresses.
func (r *router) List() []ledger.Address {
	var addrs []ledger.Address

	r.actors.Range(func(key, value any) bool {
		addrs = append(addrs, key.(ledger.Address))
		return true
	})

	return addrs
}

// Len returns the number of registered actors.
func (r *router) Len() int {
	return int(r.count.Load())
}
