package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/najoast/catalog/ledger"
)

// OutMessage summarizes a message sent by a transaction.
type OutMessage struct {
	To      ledger.Address `json:"to"`
	Value   ledger.Coins   `json:"value"`
	Op      string         `json:"op"`
	Deploy  bool           `json:"deploy,omitempty"`
	Bounce  bool           `json:"bounce,omitempty"`
	Bounced bool           `json:"bounced,omitempty"`
}

func outMessageOf(m *Message) OutMessage {
	return OutMessage{
		To:      m.To,
		Value:   m.Value,
		Op:      m.OpName(),
		Deploy:  m.Init != nil,
		Bounce:  m.Bounceable,
		Bounced: m.Bounced,
	}
}

// Transaction records the processing of one inbound message.
type Transaction struct {
	// LT orders transactions within a System.
	LT        uint64            `json:"lt"`
	Operation uuid.UUID         `json:"operation"`
	MessageID uint64            `json:"message_id"`
	From      ledger.Address    `json:"from"`
	To        ledger.Address    `json:"to"`
	Template  ledger.TemplateID `json:"template,omitempty"`
	Value     ledger.Coins      `json:"value"`
	Op        string            `json:"op"`
	OpCode    uint32            `json:"op_code"`
	Body      Body              `json:"body,omitempty"`

	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`

	// Bounced is set when the inbound message was itself a bounce.
	Bounced bool `json:"bounced,omitempty"`

	// Deploy is set on the first transaction an actor ever processes.
	Deploy bool `json:"deploy,omitempty"`

	ComputeFee   ledger.Coins `json:"compute_fee"`
	ForwardFees  ledger.Coins `json:"forward_fees"`
	BalanceAfter ledger.Coins `json:"balance_after"`
	Out          []OutMessage `json:"out,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Fees returns everything this transaction paid to the fee sink.
func (t *Transaction) Fees() ledger.Coins {
	return t.ComputeFee + t.ForwardFees
}

// Operation is the handle for one external submission and every message it
// causes. It is done once no message of the operation is queued or being
// processed.
type Operation struct {
	ID        uuid.UUID      `json:"id"`
	Origin    ledger.Address `json:"origin"`
	Target    ledger.Address `json:"target"`
	Op        string         `json:"op"`
	StartedAt time.Time      `json:"started_at"`

	// SubmitFee is the forward fee of the submitted message.
	SubmitFee ledger.Coins `json:"submit_fee"`

	mu         sync.Mutex
	txs        []*Transaction
	pending    int
	done       chan struct{}
	finishedAt time.Time
}

func newOperation(origin, target ledger.Address, body Body) *Operation {
	return &Operation{
		ID:        uuid.New(),
		Origin:    origin,
		Target:    target,
		Op:        opName(body),
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed when the operation has settled.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation settles or ctx is done.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transactions returns the transactions recorded so far, in the order they
// started.
func (o *Operation) Transactions() []*Transaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Transaction, len(o.txs))
	copy(out, o.txs)
	return out
}

// Duration returns how long the operation took, or how long it has been
// running so far.
func (o *Operation) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finishedAt.IsZero() {
		return time.Since(o.StartedAt)
	}
	return o.finishedAt.Sub(o.StartedAt)
}

// Fees sums every fee the operation paid, the submission included.
func (o *Operation) Fees() ledger.Coins {
	total := o.SubmitFee
	for _, t := range o.Transactions() {
		total += t.Fees()
	}
	return total
}

func (o *Operation) append(t *Transaction) {
	o.mu.Lock()
	o.txs = append(o.txs, t)
	o.mu.Unlock()
}

func (o *Operation) add(delta int) (settled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending += delta
	if o.pending == 0 {
		o.finishedAt = time.Now()
		return true
	}
	return false
}

func (o *Operation) finish() {
	close(o.done)
}
