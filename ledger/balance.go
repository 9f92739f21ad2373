package ledger

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInsufficientFunds is returned by Debit when the balance is too low.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Balance is the native-currency balance of one actor. Only the owning
// actor mutates it; other goroutines may read it at any time.
type Balance struct {
	nano atomic.Int64
}

// NewBalance returns a balance holding initial.
func NewBalance(initial Coins) *Balance {
	b := &Balance{}
	b.nano.Store(int64(initial))
	return b
}

// Load returns the current amount.
func (b *Balance) Load() Coins {
	return Coins(b.nano.Load())
}

// Credit adds amount to the balance.
func (b *Balance) Credit(amount Coins) {
	b.nano.Add(int64(amount))
}

// Debit removes amount from the balance, failing if it would go negative.
func (b *Balance) Debit(amount Coins) error {
	for {
		cur := b.nano.Load()
		if cur < int64(amount) {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, Coins(cur), amount)
		}
		if b.nano.CompareAndSwap(cur, cur-int64(amount)) {
			return nil
		}
	}
}

// FeeSink accumulates every fee charged by the ledger. Value paid into the
// sink leaves circulation.
type FeeSink struct {
	nano atomic.Int64
}

// Collect adds a fee to the sink.
func (s *FeeSink) Collect(fee Coins) {
	if fee > 0 {
		s.nano.Add(int64(fee))
	}
}

// Total returns all fees collected so far.
func (s *FeeSink) Total() Coins {
	return Coins(s.nano.Load())
}

// Reset sets the collected total, used when restoring from a snapshot.
func (s *FeeSink) Reset(total Coins) {
	s.nano.Store(int64(total))
}
