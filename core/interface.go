package core

import (
	"context"

	"github.com/najoast/catalog/ledger"
)

// Handler is the code an actor runs for each inbound message.
//
// A handler must validate before it mutates its own state: when it returns an
// error the transaction fails, queued sends are dropped, and a bounceable
// message returns its unspent value to the sender. Bounced messages are
// delivered with msg.Bounced set.
type Handler interface {
	HandleMessage(ctx context.Context, tx *Tx, msg *Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, tx *Tx, msg *Message) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, tx *Tx, msg *Message) error {
	return f(ctx, tx, msg)
}

// Getter is implemented by handlers that expose read-only get-methods.
// Get runs inside the actor's mailbox, so it sees a consistent state.
type Getter interface {
	Get(method string, args []any) (any, error)
}

// Snapshotter is implemented by handlers whose state can be persisted.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Factory builds the handler for a freshly deployed actor from its StateInit.
type Factory func(self ledger.Address, init ledger.StateInit) (Handler, error)

// Observer is notified of every recorded transaction. Implementations must
// not block; they are called from actor goroutines.
type Observer interface {
	OnTransaction(tx *Transaction)
}

// OperationObserver is optionally implemented by observers that want to know
// when an operation starts and when its last message has been processed.
type OperationObserver interface {
	OnOperationStart(op *Operation)
	OnOperationDone(op *Operation)
}

// Actor is a running ledger account.
type Actor interface {
	// Address returns the derived address of this Actor.
	Address() ledger.Address

	// Init returns the StateInit the Actor was deployed with.
	Init() ledger.StateInit

	// Balance returns the current balance.
	Balance() ledger.Coins

	// Start begins the Actor's message processing loop.
	// It should be called only once per Actor instance.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the Actor.
	// It will finish processing the current message before stopping.
	Stop() error

	// Stats returns current runtime statistics for this Actor.
	Stats() ActorStats

	enqueue(e envelope) error
}

// Router maps addresses to running actors.
type Router interface {
	// Register adds an Actor unless one already holds its address, in which
	// case the existing Actor is returned with loaded set.
	Register(actor Actor) (existing Actor, loaded bool)

	// Lookup finds an Actor by its address.
	Lookup(addr ledger.Address) (Actor, bool)

	// List returns all registered addresses.
	List() []ledger.Address

	// Len returns the number of registered actors.
	Len() int
}
