package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/protocol"
)

// Collection groups tracks under one title.
type Collection struct {
	self       ledger.Address
	title      string
	controller ledger.Address

	state  State
	owner  ledger.Address
	tracks []ledger.Address
	index  map[ledger.Address]struct{}
}

func newCollection(self ledger.Address, init ledger.StateInit) (core.Handler, error) {
	r := ledger.ReadParams(init.Params)
	title, err := r.String()
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
	return &Collection{
		self:       self,
		title:      title,
		controller: controller,
		index:      make(map[ledger.Address]struct{}),
	}, nil
}

// HandleMessage implements core.Handler.
func (c *Collection) HandleMessage(ctx context.Context, tx *core.Tx, msg *core.Message) error {
	if msg.Bounced {
		return nil
	}

	switch b := msg.Body.(type) {
	case protocol.CreateOrNotify:
		return c.onCreateOrNotify(tx, b)
	case protocol.RegisterTrack:
		return c.onRegisterTrack(tx, b)
	default:
		return fmt.Errorf("collection: %w: %s", core.ErrUnknownOp, msg.OpName())
	}
}

func (c *Collection) onCreateOrNotify(tx *core.Tx, b protocol.CreateOrNotify) error {
	if tx.Sender() != c.controller {
		return fmt.Errorf("create collection from %s: %w", tx.Sender().Short(), ErrUnauthorized)
	}
	if b.Title != c.title {
		return &ValidationError{Field: "title", Reason: "does not match collection"}
	}

	created := c.state == Uninitialized
	if created {
		tx.Reserve(tx.Fees().ChildReserve)
		if err := requireAckValue(tx, false); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		tx.OnCommit(func() {
			c.owner = b.Owner
			c.state = Initialized
		})
	}
	_, listed := c.index[b.Track]

	return tx.Send(core.Outbound{
		To:   tx.Sender(),
		Mode: core.SendRemaining,
		Body: protocol.CollectionAck{
			QueryID:     b.QueryID,
			Created:     created,
			TrackListed: listed,
			Title:       c.title,
			Owner:       b.Owner,
			TrackTitle:  b.TrackTitle,
		},
	})
}

func (c *Collection) onRegisterTrack(tx *core.Tx, b protocol.RegisterTrack) error {
	if tx.Sender() != c.controller {
		return fmt.Errorf("register track from %s: %w", tx.Sender().Short(), ErrUnauthorized)
	}
	if c.state != Initialized {
		return fmt.Errorf("register track: %w", ErrNotInitialized)
	}
	if _, exists := c.index[b.Track]; exists {
		return nil
	}
	tx.OnCommit(func() {
		c.index[b.Track] = struct{}{}
		c.tracks = append(c.tracks, b.Track)
	})
	return nil
}

// Get implements core.Getter.
func (c *Collection) Get(method string, args []any) (any, error) {
	switch method {
	case "title":
		return c.title, nil
	case "controller":
		return c.controller, nil
	case "owner":
		return c.owner, nil
	case "initialized":
		return c.state == Initialized, nil
	case "tracks":
		out := make([]ledger.Address, len(c.tracks))
		copy(out, c.tracks)
		return out, nil
	case "track_count":
		return uint64(len(c.tracks)), nil
	}
	return nil, fmt.Errorf("collection: %w: %s", core.ErrUnknownMethod, method)
}

type collectionState struct {
	State  State            `json:"state"`
	Owner  ledger.Address   `json:"owner"`
	Tracks []ledger.Address `json:"tracks"`
}

// Snapshot implements core.Snapshotter.
func (c *Collection) Snapshot() ([]byte, error) {
	return json.Marshal(collectionState{State: c.state, Owner: c.owner, Tracks: c.tracks})
}

// Restore implements core.Snapshotter.
func (c *Collection) Restore(data []byte) error {
	var st collectionState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	c.state, c.owner = st.State, st.Owner
	c.tracks = st.Tracks
	c.index = make(map[ledger.Address]struct{}, len(st.Tracks))
	for _, t := range st.Tracks {
		c.index[t] = struct{}{}
	}
	return nil
}
