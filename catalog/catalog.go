package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/protocol"
)

// Catalog is the root registry actor.
type Catalog struct {
	self   ledger.Address
	owner  ledger.Address
	limits Limits

	totalTracks      uint64
	totalCollections uint64
}

func newCatalog(self ledger.Address, init ledger.StateInit, limits Limits) (core.Handler, error) {
	r := ledger.ReadParams(init.Params)
	owner, err := r.Address()
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return &Catalog{self: self, owner: owner, limits: limits}, nil
}

// HandleMessage implements core.Handler.
func (c *Catalog) HandleMessage(ctx context.Context, tx *core.Tx, msg *core.Message) error {
	if msg.Bounced {
		return c.onBounce(tx, msg)
	}

	switch b := msg.Body.(type) {
	case protocol.Deploy:
		return tx.Send(core.Outbound{
			To:   tx.Sender(),
			Mode: core.SendRemaining,
			Body: protocol.DeployOk{QueryID: b.QueryID},
		})
	case protocol.AddTrack:
		return c.onAddTrack(tx, b)
	case protocol.CollectionAck:
		return c.onCollectionAck(tx, b)
	case protocol.TrackAck:
		return c.onTrackAck(tx, b)
	case nil:
		// Plain top-up.
		return nil
	default:
		return fmt.Errorf("catalog: %w: %s", core.ErrUnknownOp, msg.OpName())
	}
}

func (c *Catalog) validateTitle(field, title string) error {
	switch {
	case title == "":
		return &ValidationError{Field: field, Reason: "must not be empty"}
	case len(title) > c.limits.MaxTitleLength:
		return &ValidationError{Field: field, Reason: fmt.Sprintf("longer than %d bytes", c.limits.MaxTitleLength)}
	case !utf8.ValidString(title):
		return &ValidationError{Field: field, Reason: "not valid UTF-8"}
	}
	return nil
}

func (c *Catalog) validate(b protocol.AddTrack) error {
	if err := c.validateTitle("title", b.Title); err != nil {
		return err
	}
	if b.Collection != nil {
		return c.validateTitle("collection", *b.Collection)
	}
	return nil
}

func (c *Catalog) onAddTrack(tx *core.Tx, b protocol.AddTrack) error {
	fees := tx.Fees()
	owner := tx.Sender()

	if err := c.validate(b); err != nil {
		refund := tx.Value() - fees.ProcessingFee
		if refund < fees.ForwardFee {
			// Too little to refund, the catalog keeps all of it.
			tx.KeepValue()
			return err
		}
		tx.Logger().Info("add track rejected", zap.Error(err))
		return tx.Send(core.Outbound{
			To:    owner,
			Value: refund,
			Mode:  core.SendExact,
			Body: protocol.Excesses{
				QueryID:  b.QueryID,
				Outcome:  protocol.OutcomeFailed,
				ExitCode: core.ExitCodeOf(err),
				Reason:   err.Error(),
			},
		})
	}

	tx.Reserve(fees.ServiceFee)

	if b.Collection == nil {
		init := TrackInit(b.Title, nil, c.self)
		return tx.Send(core.Outbound{
			To:     init.Address(),
			Mode:   core.SendRemaining,
			Init:   &init,
			Bounce: true,
			Body:   protocol.CreateOrRegister{QueryID: b.QueryID, Title: b.Title, Owner: owner},
		})
	}

	init := CollectionInit(*b.Collection, c.self)
	col := init.Address()
	return tx.Send(core.Outbound{
		To:     col,
		Mode:   core.SendRemaining,
		Init:   &init,
		Bounce: true,
		Body: protocol.CreateOrNotify{
			QueryID:    b.QueryID,
			Title:      *b.Collection,
			Owner:      owner,
			TrackTitle: b.Title,
			Track:      TrackAddress(b.Title, &col, c.self),
		},
	})
}

func (c *Catalog) onCollectionAck(tx *core.Tx, b protocol.CollectionAck) error {
	col := CollectionAddress(b.Title, c.self)
	if tx.Sender() != col {
		return fmt.Errorf("collection ack from %s: %w", tx.Sender().Short(), ErrUnauthorized)
	}
	if b.Created {
		tx.OnCommit(func() { c.totalCollections++ })
	}

	if b.TrackListed {
		return tx.Send(core.Outbound{
			To:   b.Owner,
			Mode: core.SendRemaining,
			Body: protocol.Excesses{QueryID: b.QueryID, Outcome: protocol.OutcomeSucceeded},
		})
	}

	init := TrackInit(b.TrackTitle, &col, c.self)
	return tx.Send(core.Outbound{
		To:     init.Address(),
		Mode:   core.SendRemaining,
		Init:   &init,
		Bounce: true,
		Body: protocol.CreateOrRegister{
			QueryID:    b.QueryID,
			Title:      b.TrackTitle,
			Collection: &col,
			Owner:      b.Owner,
		},
	})
}

func (c *Catalog) onTrackAck(tx *core.Tx, b protocol.TrackAck) error {
	track := TrackAddress(b.Title, b.Collection, c.self)
	if tx.Sender() != track {
		return fmt.Errorf("track ack from %s: %w", tx.Sender().Short(), ErrUnauthorized)
	}
	if b.Created {
		tx.OnCommit(func() { c.totalTracks++ })
	}

	if b.Collection != nil {
		err := tx.Send(core.Outbound{
			To:    *b.Collection,
			Value: tx.Fees().RegisterValue,
			Mode:  core.SendExact,
			Body:  protocol.RegisterTrack{QueryID: b.QueryID, Track: track},
		})
		if err != nil {
			return err
		}
	}

	return tx.Send(core.Outbound{
		To:   b.Owner,
		Mode: core.SendRemaining,
		Body: protocol.Excesses{QueryID: b.QueryID, Outcome: protocol.OutcomeSucceeded},
	})
}

// onBounce forwards value returned by a failed hop to the original caller.
func (c *Catalog) onBounce(tx *core.Tx, msg *core.Message) error {
	var (
		owner   ledger.Address
		queryID uint64
	)
	switch b := msg.Body.(type) {
	case protocol.CreateOrNotify:
		owner, queryID = b.Owner, b.QueryID
	case protocol.CreateOrRegister:
		owner, queryID = b.Owner, b.QueryID
	default:
		return nil
	}

	tx.Logger().Warn("hop bounced", zap.String("hop", msg.OpName()), zap.Stringer("from", tx.Sender()))
	return tx.Send(core.Outbound{
		To:   owner,
		Mode: core.SendRemaining,
		Body: protocol.Excesses{
			QueryID: queryID,
			Outcome: protocol.OutcomeFailed,
			Reason:  msg.OpName() + " bounced",
		},
	})
}

// Get implements core.Getter.
func (c *Catalog) Get(method string, args []any) (any, error) {
	switch method {
	case "owner":
		return c.owner, nil
	case "total_tracks":
		return c.totalTracks, nil
	case "total_collections":
		return c.totalCollections, nil
	case "collection_address":
		title, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return CollectionAddress(title, c.self), nil
	case "track_address":
		title, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		var col *ledger.Address
		if len(args) > 1 && args[1] != nil {
			name, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("track_address: collection must be a string, got %T", args[1])
			}
			addr := CollectionAddress(name, c.self)
			col = &addr
		}
		return TrackAddress(title, col, c.self), nil
	}
	return nil, fmt.Errorf("catalog: %w: %s", core.ErrUnknownMethod, method)
}

func stringArg(args []any, i int) (string, error) {
	if len(args) <= i {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be a string, got %T", i, args[i])
	}
	return s, nil
}

type catalogState struct {
	TotalTracks      uint64 `json:"total_tracks"`
	TotalCollections uint64 `json:"total_collections"`
}

// Snapshot implements core.Snapshotter.
func (c *Catalog) Snapshot() ([]byte, error) {
	return json.Marshal(catalogState{TotalTracks: c.totalTracks, TotalCollections: c.totalCollections})
}

// Restore implements core.Snapshotter.
func (c *Catalog) Restore(data []byte) error {
	var st catalogState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	c.totalTracks, c.totalCollections = st.TotalTracks, st.TotalCollections
	return nil
}
