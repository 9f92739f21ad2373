package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/najoast/catalog/ledger"
)

// Body is the typed payload of a message.
type Body interface {
	// OpCode identifies the message kind on the wire.
	OpCode() uint32

	// OpName is a human-readable name used in traces and logs.
	OpName() string
}

// Message is a value-carrying message between two addresses.
type Message struct {
	// ID is unique within a System.
	ID uint64

	// Operation correlates every message caused by one external submission.
	Operation uuid.UUID

	From ledger.Address
	To   ledger.Address

	// Value is what the recipient receives, forward fee already paid.
	Value ledger.Coins

	Body Body

	// Init deploys the recipient if it does not exist yet.
	Init *ledger.StateInit

	// Bounceable messages return their unspent value when processing fails.
	Bounceable bool

	// Bounced marks a message returned to its sender. Body is the original body.
	Bounced bool

	CreatedAt time.Time
}

// OpName returns the body's name, or "empty" for a plain transfer.
func (m *Message) OpName() string {
	return opName(m.Body)
}

func opName(b Body) string {
	if b == nil {
		return "empty"
	}
	return b.OpName()
}

// OpCode returns the body's op code, or 0 for a plain transfer.
func (m *Message) OpCode() uint32 {
	if m.Body == nil {
		return 0
	}
	return m.Body.OpCode()
}

// SendMode selects how an outbound message is funded.
type SendMode uint8

const (
	// SendExact attaches exactly Outbound.Value.
	SendExact SendMode = iota

	// SendRemaining attaches whatever is left of the inbound value after the
	// compute fee, reservations and exact sends. At most one per transaction.
	SendRemaining
)

// String returns the string representation of SendMode.
func (m SendMode) String() string {
	switch m {
	case SendExact:
		return "exact"
	case SendRemaining:
		return "remaining"
	default:
		return "unknown"
	}
}

// Outbound is a message queued by a handler. It is only sent if the
// transaction succeeds.
type Outbound struct {
	To     ledger.Address
	Value  ledger.Coins
	Mode   SendMode
	Body   Body
	Init   *ledger.StateInit
	Bounce bool
}

// ActorState represents the current state of an Actor.
type ActorState uint8

const (
	// ActorStateIdle means the Actor is waiting for messages
	ActorStateIdle ActorState = iota

	// ActorStateRunning means the Actor is processing a message
	ActorStateRunning

	// ActorStateStopping means the Actor is shutting down
	ActorStateStopping

	// ActorStateStopped means the Actor has been stopped
	ActorStateStopped
)

// String returns the string representation of ActorState.
func (s ActorState) String() string {
	switch s {
	case ActorStateIdle:
		return "idle"
	case ActorStateRunning:
		return "running"
	case ActorStateStopping:
		return "stopping"
	case ActorStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ActorOptions contains configuration options for spawning actors.
type ActorOptions struct {
	// MailboxSize is the initial capacity of the mailbox queue. The queue
	// grows as needed.
	MailboxSize int

	// ProcessTimeout bounds the context passed to a handler.
	ProcessTimeout time.Duration
}

// DefaultActorOptions returns sensible default options.
func DefaultActorOptions() ActorOptions {
	return ActorOptions{
		MailboxSize:    64,
		ProcessTimeout: 30 * time.Second,
	}
}

// ActorStats contains runtime statistics for an Actor.
type ActorStats struct {
	Address  ledger.Address    `json:"address"`
	Name     string            `json:"name"`
	Template ledger.TemplateID `json:"template"`
	State    ActorState        `json:"-"`
	Balance  ledger.Coins      `json:"balance"`

	MessagesProcessed uint64    `json:"messages_processed"`
	MailboxSize       int       `json:"mailbox_size"`
	CreatedAt         time.Time `json:"created_at"`
	LastMessageAt     time.Time `json:"last_message_at"`
}
