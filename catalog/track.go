package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/protocol"
)

// Track is a registered musical work.
type Track struct {
	self       ledger.Address
	title      string
	collection *ledger.Address
	controller ledger.Address

	state State
	owner ledger.Address
}

func newTrack(self ledger.Address, init ledger.StateInit) (core.Handler, error) {
	r := ledger.ReadParams(init.Params)
	title, err := r.String()
	if err != nil {
		return nil, err
	}
	collection, err := r.OptAddress()
	if err != nil {
		return nil, err
	}
	controller, err := r.Address()
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return &Track{self: self, title: title, collection: collection, controller: controller}, nil
}

// HandleMessage implements core.Handler.
func (t *Track) HandleMessage(ctx context.Context, tx *core.Tx, msg *core.Message) error {
	if msg.Bounced {
		return nil
	}

	b, ok := msg.Body.(protocol.CreateOrRegister)
	if !ok {
		return fmt.Errorf("track: %w: %s", core.ErrUnknownOp, msg.OpName())
	}
	if tx.Sender() != t.controller {
		return fmt.Errorf("create track from %s: %w", tx.Sender().Short(), ErrUnauthorized)
	}
	if b.Title != t.title || !sameAddress(b.Collection, t.collection) {
		return &ValidationError{Field: "title", Reason: "does not match track"}
	}

	created := t.state == Uninitialized
	if created {
		tx.Reserve(tx.Fees().ChildReserve)
		if err := requireAckValue(tx, t.collection != nil); err != nil {
			return fmt.Errorf("create track: %w", err)
		}
		tx.OnCommit(func() {
			t.owner = b.Owner
			t.state = Initialized
		})
	}

	return tx.Send(core.Outbound{
		To:   tx.Sender(),
		Mode: core.SendRemaining,
		Body: protocol.TrackAck{
			QueryID:    b.QueryID,
			Created:    created,
			Title:      t.title,
			Collection: t.collection,
			Owner:      b.Owner,
		},
	})
}

// requireAckValue fails a creation whose acknowledgement could not pay for
// the catalog's transaction on it. The catalog counts a child only when that
// transaction commits, so a child must not initialize without it. register
// adds the notice the catalog forwards to a collection.
func requireAckValue(tx *core.Tx, register bool) error {
	fees := tx.Fees()
	need := 2*fees.ForwardFee + fees.ComputeFee
	if register {
		need += fees.RegisterValue
	}
	if have := tx.Available(); have < need {
		return fmt.Errorf("%w: acknowledgement would carry %s, needs %s", core.ErrInsufficientValue, have, need)
	}
	return nil
}

func sameAddress(a, b *ledger.Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Get implements core.Getter.
func (t *Track) Get(method string, args []any) (any, error) {
	switch method {
	case "title":
		return t.title, nil
	case "collection":
		if t.collection == nil {
			return (*ledger.Address)(nil), nil
		}
		col := *t.collection
		return &col, nil
	case "controller":
		return t.controller, nil
	case "owner":
		return t.owner, nil
	case "initialized":
		return t.state == Initialized, nil
	}
	return nil, fmt.Errorf("track: %w: %s", core.ErrUnknownMethod, method)
}

type trackState struct {
	State State          `json:"state"`
	Owner ledger.Address `json:"owner"`
}

// Snapshot implements core.Snapshotter.
func (t *Track) Snapshot() ([]byte, error) {
	return json.Marshal(trackState{State: t.state, Owner: t.owner})
}

// Restore implements core.Snapshotter.
func (t *Track) Restore(data []byte) error {
	var st trackState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	t.state, t.owner = st.State, st.Owner
	return nil
}
