package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/protocol"
)

// RecentTracks is how many tracks Index.Recent remembers.
const RecentTracks = 10

// IndexEntry is one created track as seen by an Index.
type IndexEntry struct {
	Address    ledger.Address  `json:"address"`
	Title      string          `json:"title"`
	Collection *ledger.Address `json:"collection,omitempty"`
	Owner      ledger.Address  `json:"owner"`
	LT         uint64          `json:"lt,omitempty"`
	AddedAt    time.Time       `json:"added_at,omitzero"`
}

// Index is an off-ledger view of the tracks one catalog has created, fed
// by the catalog's committed TrackAck transactions. It answers the
// questions the actors themselves cannot: tracks by owner and the most
// recently added tracks.
type Index struct {
	catalog ledger.Address

	mu      sync.RWMutex
	byOwner map[ledger.Address][]IndexEntry
	seen    map[ledger.Address]struct{}
	recent  [RecentTracks]IndexEntry
	next    int
	filled  int
}

// NewIndex returns an empty index of the catalog at cat.
func NewIndex(cat ledger.Address) *Index {
	return &Index{
		catalog: cat,
		byOwner: make(map[ledger.Address][]IndexEntry),
		seen:    make(map[ledger.Address]struct{}),
	}
}

// OnTransaction implements core.Observer.
func (x *Index) OnTransaction(tx *core.Transaction) {
	if !tx.Success || tx.Bounced || tx.To != x.catalog {
		return
	}
	ack, ok := tx.Body.(protocol.TrackAck)
	if !ok || !ack.Created {
		return
	}
	x.add(IndexEntry{
		Address:    tx.From,
		Title:      ack.Title,
		Collection: ack.Collection,
		Owner:      ack.Owner,
		LT:         tx.LT,
		AddedAt:    tx.FinishedAt,
	}, true)
}

func (x *Index) add(e IndexEntry, recent bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, dup := x.seen[e.Address]; dup {
		return
	}
	x.seen[e.Address] = struct{}{}
	x.byOwner[e.Owner] = append(x.byOwner[e.Owner], e)
	if recent {
		x.recent[x.next] = e
		x.next = (x.next + 1) % RecentTracks
		x.filled = min(x.filled+1, RecentTracks)
	}
}

// Count returns how many tracks the index has seen.
func (x *Index) Count() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return uint64(len(x.seen))
}

// ByOwner returns owner's tracks in the order the index saw them.
func (x *Index) ByOwner(owner ledger.Address) []IndexEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entries := x.byOwner[owner]
	return append(make([]IndexEntry, 0, len(entries)), entries...)
}

// Recent returns up to RecentTracks tracks, newest first.
func (x *Index) Recent() []IndexEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]IndexEntry, 0, x.filled)
	for i := 1; i <= x.filled; i++ {
		out = append(out, x.recent[(x.next-i+RecentTracks)%RecentTracks])
	}
	return out
}

// Rebuild adds every initialized track of the catalog that is deployed in
// sys, for an index attached after a restore. Rebuilt tracks carry no
// creation time and do not enter the recent list.
func (x *Index) Rebuild(ctx context.Context, sys *core.System) error {
	for _, st := range sys.Stats() {
		if st.Template != TrackTemplate {
			continue
		}
		t := NewTrackClient(sys, st.Address)
		controller, err := t.Controller(ctx)
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		if controller != x.catalog {
			continue
		}
		initialized, err := t.Initialized(ctx)
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		if !initialized {
			continue
		}
		e := IndexEntry{Address: st.Address}
		if e.Title, err = t.Title(ctx); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		if e.Collection, err = t.Collection(ctx); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		if e.Owner, err = t.Owner(ctx); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		x.add(e, false)
	}
	return nil
}
