package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/core"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDerive(t *testing.T) {
	out, err := execute(t, "derive", "--owner", "label", "--title", "Song", "--collection", "Album")
	require.NoError(t, err)

	owner := core.WalletInit("label").Address()
	cat := catalog.CatalogInit(owner).Address()
	col := catalog.CollectionAddress("Album", cat)

	assert.Contains(t, out, "catalog     "+cat.String())
	assert.Contains(t, out, "collection  "+col.String())
	assert.Contains(t, out, "track       "+catalog.TrackAddress("Song", &col, cat).String())
}

func TestDeriveDefaultOwner(t *testing.T) {
	out, err := execute(t, "derive", "--title", "Solo")
	require.NoError(t, err)

	cat := catalog.CatalogInit(core.WalletInit("owner").Address()).Address()
	assert.Contains(t, out, "track       "+catalog.TrackAddress("Solo", nil, cat).String())
	assert.NotContains(t, out, "collection")
}

func TestDeriveRejectsBadOwnerAddress(t *testing.T) {
	_, err := execute(t, "derive", "--owner-address", "0:zz", "--title", "x")
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	out, err := execute(t, "simulate", "--title", "Song", "--collection", "Album")
	require.NoError(t, err)

	assert.Contains(t, out, "caller-1: succeeded")
	assert.Contains(t, out, "AddTrack")
	assert.Contains(t, out, "RegisterTrack")
	assert.Equal(t, 7, strings.Count(out, "\n  #"))
}

func TestSimulateRepeatJSON(t *testing.T) {
	out, err := execute(t, "simulate", "--title", "Song", "--repeat", "4", "--json")
	require.NoError(t, err)

	var report struct {
		Results []struct {
			Caller  string `json:"caller"`
			Outcome string `json:"outcome"`
			Track   string `json:"track"`
			Trace   []any  `json:"trace"`
		} `json:"results"`
		Minted string `json:"minted"`
		Supply string `json:"supply"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 4)

	track := report.Results[0].Track
	for _, r := range report.Results {
		assert.Equal(t, "succeeded", r.Outcome, r.Caller)
		assert.Equal(t, track, r.Track)
		assert.Len(t, r.Trace, 4)
	}
	assert.Equal(t, report.Minted, report.Supply)
}

func TestSimulateTooLittleValue(t *testing.T) {
	out, err := execute(t, "simulate", "--title", "Song", "--value", "0.012")
	require.NoError(t, err)
	assert.NotContains(t, out, "caller-1: succeeded")
}

func TestSimulateRequiresTitle(t *testing.T) {
	_, err := execute(t, "simulate")
	assert.Error(t, err)
}
