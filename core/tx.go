package core

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najoast/catalog/ledger"
)

// Tx is the handler's view of the transaction processing one message. All
// value a handler reserves or sends comes out of the inbound value that is
// left after the compute fee.
type Tx struct {
	actor *actor
	msg   *Message
	fees  ledger.FeeSchedule

	reserved  ledger.Coins
	exact     ledger.Coins
	remaining bool
	keep      bool
	sends     []Outbound
	onCommit  []func()
}

func newTx(a *actor, msg *Message, fees ledger.FeeSchedule) *Tx {
	return &Tx{actor: a, msg: msg, fees: fees}
}

// Self returns the address of the actor processing the message.
func (tx *Tx) Self() ledger.Address { return tx.actor.addr }

// Sender returns the address the message came from.
func (tx *Tx) Sender() ledger.Address { return tx.msg.From }

// Value returns the inbound value.
func (tx *Tx) Value() ledger.Coins { return tx.msg.Value }

// Operation returns the operation the message belongs to.
func (tx *Tx) Operation() uuid.UUID { return tx.msg.Operation }

// Fees returns the fee schedule in force for this transaction.
func (tx *Tx) Fees() ledger.FeeSchedule { return tx.fees }

// Balance returns the actor's balance, inbound value included.
func (tx *Tx) Balance() ledger.Coins { return tx.actor.balance.Load() }

// Logger returns a logger tagged with the actor and operation.
func (tx *Tx) Logger() *zap.Logger {
	return tx.actor.log.With(zap.String("query_id", tx.msg.Operation.String()), zap.String("op", tx.msg.OpName()))
}

// Reserve keeps amount of the inbound value on the actor's balance.
func (tx *Tx) Reserve(amount ledger.Coins) {
	tx.reserved += amount
}

// Available returns what is left of the inbound value for a SendRemaining
// message. It may be negative, in which case the transaction will fail.
func (tx *Tx) Available() ledger.Coins {
	return tx.msg.Value - tx.fees.ComputeFee - tx.reserved - tx.exact
}

// KeepValue makes the transaction keep its inbound value on the actor's
// balance if it fails, instead of bouncing it to the sender.
func (tx *Tx) KeepValue() {
	tx.keep = true
}

// Send queues an outbound message.
func (tx *Tx) Send(o Outbound) error {
	if o.Mode == SendRemaining {
		if tx.remaining {
			return ErrMultipleRemaining
		}
		tx.remaining = true
	} else {
		tx.exact += o.Value
	}
	tx.sends = append(tx.sends, o)
	return nil
}

// OnCommit defers a state change until the transaction succeeds. Changes
// registered this way are discarded when a later check fails, so handlers
// can validate and mutate in one pass.
func (tx *Tx) OnCommit(fn func()) {
	tx.onCommit = append(tx.onCommit, fn)
}

// commit resolves the value of every queued send.
func (tx *Tx) commit() ([]Outbound, error) {
	avail := tx.Available()
	if avail < 0 {
		return nil, fmt.Errorf("%w: short by %s", ErrInsufficientValue, -avail)
	}
	out := make([]Outbound, len(tx.sends))
	for i, o := range tx.sends {
		if o.Mode == SendRemaining {
			o.Value = avail
		}
		if o.Value < tx.fees.ForwardFee {
			return nil, fmt.Errorf("%w: %s to %s cannot pay forward fee %s",
				ErrInsufficientValue, opName(o.Body), o.To.Short(), tx.fees.ForwardFee)
		}
		out[i] = o
	}
	for _, fn := range tx.onCommit {
		fn()
	}
	return out, nil
}
