package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/protocol"
)

func addresses(entries []IndexEntry) []ledger.Address {
	out := make([]ledger.Address, len(entries))
	for i, e := range entries {
		out[i] = e.Address
	}
	return out
}

func TestIndexByOwnerAndRecent(t *testing.T) {
	f := newFixture(t)
	idx := NewIndex(f.cat.Address())
	f.sys.AddObserver(idx)
	catAddr := f.cat.Address()

	bob, err := f.sys.OpenWallet("bob", coins("10"))
	require.NoError(t, err)

	var added []ledger.Address
	for i := 0; i < 12; i++ {
		title := fmt.Sprintf("Song %d", i)
		var col *string
		if i%3 == 0 {
			col = strPtr("Album")
		}
		f.addTrack(t, f.deployer, coins("1"), title, col)

		var colAddr *ledger.Address
		if col != nil {
			a := CollectionAddress(*col, catAddr)
			colAddr = &a
		}
		added = append(added, TrackAddress(title, colAddr, catAddr))
	}
	f.addTrack(t, bob, coins("1"), "Bob's song", nil)

	// neither a re-add nor a rejected request is a new track
	f.addTrack(t, f.deployer, coins("1"), "Song 0", strPtr("Album"))
	f.addTrack(t, f.deployer, coins("1"), "", nil)

	tracks, _ := f.totals(t)
	assert.Equal(t, tracks, idx.Count())
	assert.Equal(t, uint64(13), idx.Count())

	mine := idx.ByOwner(f.deployer.Address())
	assert.Equal(t, added, addresses(mine))
	assert.Equal(t, "Song 0", mine[0].Title)
	require.NotNil(t, mine[0].Collection)
	assert.Equal(t, CollectionAddress("Album", catAddr), *mine[0].Collection)
	assert.Nil(t, mine[1].Collection)

	theirs := idx.ByOwner(bob.Address())
	require.Len(t, theirs, 1)
	assert.Equal(t, "Bob's song", theirs[0].Title)
	assert.Empty(t, idx.ByOwner(catAddr))

	recent := idx.Recent()
	require.Len(t, recent, RecentTracks)
	assert.Equal(t, "Bob's song", recent[0].Title)
	assert.Equal(t, "Song 11", recent[1].Title)
	assert.Equal(t, "Song 3", recent[RecentTracks-1].Title)
	for i := 1; i < len(recent); i++ {
		assert.Greater(t, recent[i-1].LT, recent[i].LT, "recent tracks are newest first")
	}
}

func TestIndexIgnoresRejectedAcks(t *testing.T) {
	f := newFixture(t)
	idx := NewIndex(f.cat.Address())
	f.sys.AddObserver(idx)
	ctx := testContext(t)

	op, err := f.deployer.Send(ctx, f.cat.Address(), coins("1"),
		protocol.TrackAck{Created: true, Title: "Forged", Owner: f.deployer.Address()}, nil)
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	f.addTrack(t, f.deployer, coins("0.075"), "Song", nil)

	assert.Zero(t, idx.Count())
	assert.Empty(t, idx.Recent())
}

func TestIndexRebuild(t *testing.T) {
	f := newFixture(t)
	live := NewIndex(f.cat.Address())
	f.sys.AddObserver(live)

	for i := 0; i < 4; i++ {
		f.addTrack(t, f.deployer, coins("1"), fmt.Sprintf("Song %d", i), strPtr("Album"))
	}
	// deployed but never initialized
	f.addTrack(t, f.deployer, coins("0.047"), "Starved", nil)

	rebuilt := NewIndex(f.cat.Address())
	require.NoError(t, rebuilt.Rebuild(testContext(t), f.sys))

	assert.Equal(t, live.Count(), rebuilt.Count())
	assert.ElementsMatch(t, addresses(live.ByOwner(f.deployer.Address())), addresses(rebuilt.ByOwner(f.deployer.Address())))
	assert.Empty(t, rebuilt.Recent())

	// tracks the live index already holds are not added twice
	require.NoError(t, live.Rebuild(testContext(t), f.sys))
	assert.Equal(t, uint64(4), live.Count())
	assert.Len(t, live.Recent(), 4)
}
