package core

import (
	"context"
	"fmt"

	"github.com/najoast/catalog/ledger"
)

// WalletTemplate is the template of external accounts.
const WalletTemplate ledger.TemplateID = "wallet"

// walletHandler accepts every message and keeps its value.
type walletHandler struct{}

func newWalletHandler(ledger.Address, ledger.StateInit) (Handler, error) {
	return walletHandler{}, nil
}

func (walletHandler) HandleMessage(context.Context, *Tx, *Message) error {
	return nil
}

// Wallet is an external account that starts operations.
type Wallet struct {
	sys  *System
	name string
	addr ledger.Address
}

// WalletInit returns the StateInit of the wallet called name.
func WalletInit(name string) ledger.StateInit {
	return ledger.StateInit{Template: WalletTemplate, Params: ledger.NewParams().String(name).Bytes()}
}

// OpenWallet returns the wallet called name, creating it with balance newly
// minted coins if it does not exist yet.
func (s *System) OpenWallet(name string, balance ledger.Coins) (*Wallet, error) {
	if balance < 0 {
		return nil, fmt.Errorf("open wallet %q: negative balance %s", name, balance)
	}
	init := WalletInit(name)
	addr := init.Address()
	w := &Wallet{sys: s, name: name, addr: addr}

	s.gate.RLock()
	defer s.gate.RUnlock()
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.Exists(addr) {
		return w, nil
	}
	if _, err := s.spawn(addr, init, balance, nil); err != nil {
		return nil, fmt.Errorf("open wallet %q: %w", name, err)
	}
	s.minted.Add(int64(balance))
	if err := s.book.Label(addr, name); err != nil {
		s.log.Warn(err.Error())
	}
	return w, nil
}

// Name returns the wallet's name.
func (w *Wallet) Name() string { return w.name }

// Address returns the wallet's address.
func (w *Wallet) Address() ledger.Address { return w.addr }

// Balance returns the wallet's current balance.
func (w *Wallet) Balance() ledger.Coins {
	b, _ := w.sys.BalanceOf(w.addr)
	return b
}

// Send submits a bounceable message carrying value to to. The returned
// Operation settles once every message it causes has been processed.
func (w *Wallet) Send(ctx context.Context, to ledger.Address, value ledger.Coins, body Body, init *ledger.StateInit) (*Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.sys.stopped.Load() {
		return nil, ErrSystemStopped
	}

	w.sys.gate.RLock()
	defer w.sys.gate.RUnlock()

	a, ok := w.sys.router.Lookup(w.addr)
	if !ok {
		return nil, fmt.Errorf("wallet %q: %w", w.name, ErrAccountNotFound)
	}
	if fwd := w.sys.Fees().ForwardFee; value < fwd {
		return nil, fmt.Errorf("wallet %q: %w: %s cannot pay forward fee %s", w.name, ErrInsufficientValue, value, fwd)
	}
	if err := a.(*actor).balance.Debit(value); err != nil {
		return nil, fmt.Errorf("wallet %q: %w", w.name, err)
	}
	return w.sys.submit(w.addr, to, value, body, init), nil
}
