package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
)

func newSystem(t *testing.T) *core.System {
	t.Helper()
	sys := core.NewSystem()
	require.NoError(t, catalog.Register(sys, catalog.DefaultLimits()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })
	return sys
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoadEmpty(t *testing.T) {
	ctx := testContext(t)
	s, err := Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	restored, err := s.RestoreSystem(ctx, newSystem(t))
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestSaveAndRestoreSystem(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "catalog.db")

	sys := newSystem(t)
	w, err := sys.OpenWallet("artist", ledger.MustParseCoins("100"))
	require.NoError(t, err)
	cat, op, err := catalog.Deploy(ctx, sys, w, ledger.MustParseCoins("1"))
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	album := "Album"
	op, err = cat.AddTrack(ctx, w, ledger.MustParseCoins("1"), "Song", &album)
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveSystem(ctx, sys))
	require.NoError(t, s.Close())

	wantBalance := w.Balance()
	wantSupply := sys.Supply()
	trackAddr, err := cat.TrackAddress(ctx, "Song", &album)
	require.NoError(t, err)

	// reopen the file into a fresh system
	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	fresh := newSystem(t)
	restored, err := s.RestoreSystem(ctx, fresh)
	require.NoError(t, err)
	require.True(t, restored)

	assert.Equal(t, wantSupply, fresh.Supply())
	assert.Equal(t, fresh.Minted(), fresh.Supply())
	bal, ok := fresh.BalanceOf(w.Address())
	require.True(t, ok)
	assert.Equal(t, wantBalance, bal)

	addr, ok := fresh.Book().Lookup("catalog")
	require.True(t, ok)
	assert.Equal(t, cat.Address(), addr)

	fcat := catalog.NewCatalogClient(fresh, cat.Address())
	tracks, err := fcat.TotalTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tracks)

	title, err := catalog.NewTrackClient(fresh, trackAddr).Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Song", title)

	// the restored wallet keeps sending, and the listed track is recognized
	fw, err := fresh.OpenWallet("artist", 0)
	require.NoError(t, err)
	op, err = fcat.AddTrack(ctx, fw, ledger.MustParseCoins("1"), "Song", &album)
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))
	assert.Len(t, op.Transactions(), 4)

	tracks, err = fcat.TotalTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tracks)
	assert.Equal(t, fresh.Minted(), fresh.Supply())
}

func TestSaveReplacesPrevious(t *testing.T) {
	ctx := testContext(t)
	s, err := Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	a := core.WalletInit("a")
	b := core.WalletInit("b")
	first := &core.Snapshot{
		Actors: []core.ActorSnapshot{
			{Address: a.Address(), Template: a.Template, Params: a.Params, Balance: 5, Deployed: true},
			{Address: b.Address(), Template: b.Template, Params: b.Params, Balance: 7},
		},
		Fees:   3,
		Minted: 15,
	}
	require.NoError(t, s.Save(ctx, State{Snapshot: first}))

	second := &core.Snapshot{
		Actors: first.Actors[:1],
		Fees:   10,
		Minted: 15,
	}
	require.NoError(t, s.Save(ctx, State{
		Snapshot: second,
		Labels:   []core.AddressEntry{{Name: "a", Address: a.Address()}},
	}))

	st, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, st.Snapshot.Actors, 1)
	got := st.Snapshot.Actors[0]
	assert.Equal(t, a.Address(), got.Address)
	assert.Equal(t, ledger.Coins(5), got.Balance)
	assert.True(t, got.Deployed)
	assert.Equal(t, a.Params, got.Params)
	assert.Empty(t, got.State)
	assert.Equal(t, ledger.Coins(10), st.Snapshot.Fees)
	assert.Equal(t, ledger.Coins(15), st.Snapshot.Minted)
	require.Len(t, st.Labels, 1)
	assert.Equal(t, "a", st.Labels[0].Name)
	assert.False(t, st.SavedAt.IsZero())
}

func TestSaveWhileRequestsArrive(t *testing.T) {
	ctx := testContext(t)
	s, err := Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	sys := newSystem(t)
	w, err := sys.OpenWallet("artist", ledger.MustParseCoins("100"))
	require.NoError(t, err)
	cat, op, err := catalog.Deploy(ctx, sys, w, ledger.MustParseCoins("1"))
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 20; i++ {
			if _, err := cat.AddTrack(ctx, w, ledger.MustParseCoins("1"), fmt.Sprintf("Song %d", i), nil); err != nil {
				return err
			}
		}
		return nil
	})
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveSystem(ctx, sys))
	}
	require.NoError(t, g.Wait())

	require.NoError(t, s.SaveSystem(ctx, sys))
	fresh := newSystem(t)
	restored, err := s.RestoreSystem(ctx, fresh)
	require.NoError(t, err)
	require.True(t, restored)
	assert.Equal(t, fresh.Minted(), fresh.Supply())

	tracks, err := catalog.NewCatalogClient(fresh, cat.Address()).TotalTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), tracks)
}
