package catalog

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/protocol"
)

// NewQueryID returns a random query id for a request.
func NewQueryID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

func get[T any](ctx context.Context, sys *core.System, addr ledger.Address, method string, args ...any) (T, error) {
	var zero T
	v, err := sys.Get(ctx, addr, method, args...)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T, want %T", method, v, zero)
	}
	return out, nil
}

// CatalogClient wraps the catalog's get-methods and requests.
type CatalogClient struct {
	sys  *core.System
	addr ledger.Address
}

// NewCatalogClient returns a client for the catalog at addr.
func NewCatalogClient(sys *core.System, addr ledger.Address) *CatalogClient {
	return &CatalogClient{sys: sys, addr: addr}
}

// Deploy deploys the catalog owned by w, funding it with value. The
// returned operation settles once DeployOk has reached the wallet.
func Deploy(ctx context.Context, sys *core.System, w *core.Wallet, value ledger.Coins) (*CatalogClient, *core.Operation, error) {
	init := CatalogInit(w.Address())
	addr := init.Address()
	op, err := w.Send(ctx, addr, value, protocol.Deploy{QueryID: NewQueryID()}, &init)
	if err != nil {
		return nil, nil, fmt.Errorf("deploy catalog: %w", err)
	}
	if sys.Book().Name(addr) == addr.Short() {
		_ = sys.Book().Label(addr, "catalog")
	}
	return NewCatalogClient(sys, addr), op, nil
}

// Address returns the catalog's address.
func (c *CatalogClient) Address() ledger.Address { return c.addr }

// AddTrack sends an AddTrack request from w. collection may be nil.
func (c *CatalogClient) AddTrack(ctx context.Context, w *core.Wallet, value ledger.Coins, title string, collection *string) (*core.Operation, error) {
	body := protocol.AddTrack{QueryID: NewQueryID(), Title: title, Collection: collection}
	return w.Send(ctx, c.addr, value, body, nil)
}

// Owner returns the deployer of the catalog.
func (c *CatalogClient) Owner(ctx context.Context) (ledger.Address, error) {
	return get[ledger.Address](ctx, c.sys, c.addr, "owner")
}

// TotalTracks returns how many tracks the catalog has created.
func (c *CatalogClient) TotalTracks(ctx context.Context) (uint64, error) {
	return get[uint64](ctx, c.sys, c.addr, "total_tracks")
}

// TotalCollections returns how many collections the catalog has created.
func (c *CatalogClient) TotalCollections(ctx context.Context) (uint64, error) {
	return get[uint64](ctx, c.sys, c.addr, "total_collections")
}

// TrackAddress derives the address of a track. collection may be nil.
func (c *CatalogClient) TrackAddress(ctx context.Context, title string, collection *string) (ledger.Address, error) {
	var col any
	if collection != nil {
		col = *collection
	}
	return get[ledger.Address](ctx, c.sys, c.addr, "track_address", title, col)
}

// CollectionAddress derives the address of a collection.
func (c *CatalogClient) CollectionAddress(ctx context.Context, title string) (ledger.Address, error) {
	return get[ledger.Address](ctx, c.sys, c.addr, "collection_address", title)
}

// TrackClient wraps a track's get-methods.
type TrackClient struct {
	sys  *core.System
	addr ledger.Address
}

// NewTrackClient returns a client for the track at addr.
func NewTrackClient(sys *core.System, addr ledger.Address) *TrackClient {
	return &TrackClient{sys: sys, addr: addr}
}

// Address returns the track's address.
func (t *TrackClient) Address() ledger.Address { return t.addr }

// Title returns the track title.
func (t *TrackClient) Title(ctx context.Context) (string, error) {
	return get[string](ctx, t.sys, t.addr, "title")
}

// Collection returns the track's collection, or nil.
func (t *TrackClient) Collection(ctx context.Context) (*ledger.Address, error) {
	return get[*ledger.Address](ctx, t.sys, t.addr, "collection")
}

// Owner returns the caller that created the track.
func (t *TrackClient) Owner(ctx context.Context) (ledger.Address, error) {
	return get[ledger.Address](ctx, t.sys, t.addr, "owner")
}

// Controller returns the catalog that controls the track.
func (t *TrackClient) Controller(ctx context.Context) (ledger.Address, error) {
	return get[ledger.Address](ctx, t.sys, t.addr, "controller")
}

// Initialized reports whether the track has accepted its creation message.
func (t *TrackClient) Initialized(ctx context.Context) (bool, error) {
	return get[bool](ctx, t.sys, t.addr, "initialized")
}

// CollectionClient wraps a collection's get-methods.
type CollectionClient struct {
	sys  *core.System
	addr ledger.Address
}

// NewCollectionClient returns a client for the collection at addr.
func NewCollectionClient(sys *core.System, addr ledger.Address) *CollectionClient {
	return &CollectionClient{sys: sys, addr: addr}
}

// Address returns the collection's address.
func (c *CollectionClient) Address() ledger.Address { return c.addr }

// Title returns the collection title.
func (c *CollectionClient) Title(ctx context.Context) (string, error) {
	return get[string](ctx, c.sys, c.addr, "title")
}

// Owner returns the caller that created the collection.
func (c *CollectionClient) Owner(ctx context.Context) (ledger.Address, error) {
	return get[ledger.Address](ctx, c.sys, c.addr, "owner")
}

// Controller returns the catalog that controls the collection.
func (c *CollectionClient) Controller(ctx context.Context) (ledger.Address, error) {
	return get[ledger.Address](ctx, c.sys, c.addr, "controller")
}

// Tracks returns the listed tracks in insertion order.
func (c *CollectionClient) Tracks(ctx context.Context) ([]ledger.Address, error) {
	return get[[]ledger.Address](ctx, c.sys, c.addr, "tracks")
}

// TrackCount returns the number of listed tracks.
func (c *CollectionClient) TrackCount(ctx context.Context) (uint64, error) {
	return get[uint64](ctx, c.sys, c.addr, "track_count")
}

// Initialized reports whether the collection has accepted its creation
// message.
func (c *CollectionClient) Initialized(ctx context.Context) (bool, error) {
	return get[bool](ctx, c.sys, c.addr, "initialized")
}

// Outcome reports how an AddTrack operation ended for its caller: the
// Excesses message the caller received, and the value it carried.
func Outcome(op *core.Operation) (protocol.Excesses, ledger.Coins, bool) {
	for _, t := range op.Transactions() {
		if t.To != op.Origin {
			continue
		}
		if ex, ok := t.Body.(protocol.Excesses); ok {
			return ex, t.Value, true
		}
		if t.Bounced {
			return protocol.Excesses{Outcome: protocol.OutcomeFailed, Reason: "bounced"}, t.Value, true
		}
	}
	return protocol.Excesses{}, 0, false
}
