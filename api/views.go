package api

import (
	"encoding/hex"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/protocol"
)

var wire = protocol.DefaultRegistry()

// TxView is a transaction with its addresses replaced by address-book names.
type TxView struct {
	LT       uint64       `json:"lt"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Op       string       `json:"op"`
	Value    ledger.Coins `json:"value"`
	Success  bool         `json:"success"`
	ExitCode int          `json:"exit_code"`
	Error    string       `json:"error,omitempty"`
	Bounced  bool         `json:"bounced,omitempty"`
	Deploy   bool         `json:"deploy,omitempty"`
	Fees     ledger.Coins `json:"fees"`
	Out      []OutView    `json:"out,omitempty"`
	// Raw is the inbound body in hex wire form, as accepted by POST /v1/messages.
	Raw string `json:"raw,omitempty"`
}

// OutView is an outbound message of a TxView.
type OutView struct {
	To      string       `json:"to"`
	Op      string       `json:"op"`
	Value   ledger.Coins `json:"value"`
	Bounced bool         `json:"bounced,omitempty"`
}

// Trace names every transaction of txs through book.
func Trace(book *core.AddressBook, txs []*core.Transaction) []TxView {
	out := make([]TxView, 0, len(txs))
	for _, t := range txs {
		v := TxView{
			LT:       t.LT,
			From:     book.Name(t.From),
			To:       book.Name(t.To),
			Op:       t.Op,
			Value:    t.Value,
			Success:  t.Success,
			ExitCode: t.ExitCode,
			Error:    t.Error,
			Bounced:  t.Bounced,
			Deploy:   t.Deploy,
			Fees:     t.Fees(),
		}
		if t.Body != nil {
			if data, err := wire.Encode(t.Body); err == nil {
				v.Raw = hex.EncodeToString(data)
			}
		}
		for _, o := range t.Out {
			v.Out = append(v.Out, OutView{To: book.Name(o.To), Op: o.Op, Value: o.Value, Bounced: o.Bounced})
		}
		out = append(out, v)
	}
	return out
}
