package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/choreography"
	"github.com/najoast/catalog/config"
	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/metrics"
)

type fixture struct {
	sys *core.System
	cat *catalog.CatalogClient
	srv *Server
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.API.RateLimit = 0
	if mutate != nil {
		mutate(cfg)
	}

	m := metrics.New()
	tracker := choreography.NewTracker(0, nil)
	sys := core.NewSystem(core.WithObserver(m), core.WithObserver(tracker))
	require.NoError(t, catalog.Register(sys, catalog.DefaultLimits()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	owner, err := sys.OpenWallet("owner", ledger.MustParseCoins("1000"))
	require.NoError(t, err)
	cat, op, err := catalog.Deploy(ctx, sys, owner, ledger.MustParseCoins("1"))
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	idx := catalog.NewIndex(cat.Address())
	sys.AddObserver(idx)

	srv := New(sys, cat, Options{
		API:           cfg.API,
		Monitor:       cfg.Monitor,
		WalletFunding: cfg.Ledger.WalletFunding,
		Metrics:       m,
		Tracker:       tracker,
		Index:         idx,
	})
	return &fixture{sys: sys, cat: cat, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestAddTrackWithCollection(t *testing.T) {
	f := newFixture(t, nil)

	rec, out := f.do(t, http.MethodPost, "/v1/tracks", gin.H{
		"caller":     "alice",
		"title":      "Song",
		"collection": "Album",
		"value":      "1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "succeeded", out["outcome"])
	assert.Len(t, out["trace"], 7)
	assert.NotEqual(t, "0", out["refund"])

	phase := out["phase"].(map[string]any)
	assert.Equal(t, "succeeded", phase["phase"])

	trace := out["trace"].([]any)
	first := trace[0].(map[string]any)
	assert.Equal(t, "alice", first["from"])
	assert.Equal(t, "catalog", first["to"])
	assert.Equal(t, "AddTrack", first["op"])

	trackAddr := out["track"].(string)
	colAddr := out["collection"].(string)

	rec, track := f.do(t, http.MethodGet, "/v1/tracks/"+trackAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Song", track["title"])
	assert.Equal(t, colAddr, track["collection"])
	assert.Equal(t, true, track["initialized"])

	rec, col := f.do(t, http.MethodGet, "/v1/collections/"+colAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Album", col["title"])
	assert.Equal(t, float64(1), col["track_count"])
	assert.Equal(t, []any{trackAddr}, col["tracks"])

	rec, info := f.do(t, http.MethodGet, "/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), info["total_tracks"])
	assert.Equal(t, float64(1), info["total_collections"])

	rec, addr := f.do(t, http.MethodGet, "/v1/catalog/track-address?title=Song&collection=Album", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, trackAddr, addr["address"])
	assert.Equal(t, true, addr["deployed"])

	rec, addr = f.do(t, http.MethodGet, "/v1/catalog/collection-address?title=Album", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, colAddr, addr["address"])

	// the successful add labels the new actors
	named, ok := f.sys.Book().Lookup("track/Album/Song")
	require.True(t, ok)
	assert.Equal(t, trackAddr, named.String())

	rec, opRec := f.do(t, http.MethodGet, "/v1/operations/"+out["operation"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "succeeded", opRec["phase"])
}

func TestAddTrackDefaultValue(t *testing.T) {
	f := newFixture(t, nil)

	rec, out := f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "bob", "title": "Solo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "succeeded", out["outcome"])
	assert.Len(t, out["trace"], 4)
	assert.Nil(t, out["collection"])
}

func TestAddTrackRejected(t *testing.T) {
	f := newFixture(t, nil)

	rec, out := f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "alice", "title": "", "value": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", out["outcome"])
	assert.Equal(t, float64(catalog.ExitValidation), out["exit_code"])
	assert.Len(t, out["trace"], 2)

	rec, info := f.do(t, http.MethodGet, "/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), info["total_tracks"])
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodPost, "/v1/tracks", gin.H{"title": "NoCaller"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "a", "title": "x", "value": "lots"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "poor", "title": "x", "value": "5000"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/v1/catalog/track-address", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/v1/tracks/garbage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/v1/tracks/"+catalog.TrackAddress("nowhere", nil, f.cat.Address()).String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/v1/collections/"+f.cat.Address().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/v1/operations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t, nil)

	rec, out := f.do(t, http.MethodPost, "/v1/messages", gin.H{
		"from":  "mallory",
		"to":    "catalog",
		"value": "1",
		"op":    "RegisterTrack",
		"body":  gin.H{"query_id": 7},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trace := out["trace"].([]any)
	require.Len(t, trace, 2)
	first := trace[0].(map[string]any)
	assert.Equal(t, float64(core.ExitUnknownOp), first["exit_code"])
	assert.Equal(t, true, trace[1].(map[string]any)["bounced"])

	rec, _ = f.do(t, http.MethodPost, "/v1/messages", gin.H{"from": "m", "to": "catalog", "value": "1", "op": "Nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/v1/messages", gin.H{"from": "m", "to": "nobody", "value": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendRawMessage(t *testing.T) {
	f := newFixture(t, nil)

	rec, out := f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "alice", "title": "Solo", "value": "1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := out["trace"].([]any)[0].(map[string]any)
	raw, ok := first["raw"].(string)
	require.True(t, ok)
	require.NotEmpty(t, raw)

	// replaying the wire form of the AddTrack re-adds the same track
	rec, out = f.do(t, http.MethodPost, "/v1/messages", gin.H{"from": "carol", "to": "catalog", "value": "1", "raw": raw})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trace := out["trace"].([]any)
	require.Len(t, trace, 4)
	assert.Equal(t, "AddTrack", trace[0].(map[string]any)["op"])
	assert.Equal(t, "Excesses", trace[3].(map[string]any)["op"])
	assert.Equal(t, "carol", trace[3].(map[string]any)["to"])

	rec, info := f.do(t, http.MethodGet, "/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), info["total_tracks"])

	rec, _ = f.do(t, http.MethodPost, "/v1/messages", gin.H{"from": "carol", "to": "catalog", "value": "1", "raw": "zz"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/v1/messages", gin.H{"from": "carol", "to": "catalog", "value": "1", "raw": raw, "op": "AddTrack"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackIndexRoutes(t *testing.T) {
	f := newFixture(t, nil)

	for _, title := range []string{"One", "Two", "Three"} {
		rec, _ := f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "alice", "title": title, "value": "1"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec, _ := f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "bob", "title": "Four", "collection": "Album", "value": "1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, out := f.do(t, http.MethodGet, "/v1/tracks?owner=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3), out["count"])
	titles := []string{}
	for _, tr := range out["tracks"].([]any) {
		titles = append(titles, tr.(map[string]any)["title"].(string))
	}
	assert.Equal(t, []string{"One", "Two", "Three"}, titles)

	rec, _ = f.do(t, http.MethodGet, "/v1/tracks?owner=nobody-yet", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = f.do(t, http.MethodGet, "/v1/tracks?owner="+f.cat.Address().String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), out["count"])
	assert.Equal(t, []any{}, out["tracks"])

	rec, out = f.do(t, http.MethodGet, "/v1/tracks/recent", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(4), out["total"])
	recent := out["tracks"].([]any)
	require.Len(t, recent, 4)
	newest := recent[0].(map[string]any)
	assert.Equal(t, "Four", newest["title"])
	assert.NotEmpty(t, newest["collection"])

	rec, _ = f.do(t, http.MethodGet, "/v1/tracks", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthMetricsActors(t *testing.T) {
	f := newFixture(t, nil)

	rec, health := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, health["minted"], health["supply"])

	rec, _ = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalog_transactions_total")

	rec, actors := f.do(t, http.MethodGet, "/v1/actors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), actors["count"])
	names := map[string]bool{}
	for _, a := range actors["actors"].([]any) {
		names[a.(map[string]any)["name"].(string)] = true
	}
	assert.True(t, names["owner"])
	assert.True(t, names["catalog"])
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.API.RateLimit = 0.001
		c.API.RateBurst = 1
	})

	rec, _ := f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "a", "title": "One"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/v1/tracks", gin.H{"caller": "a", "title": "Two"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// reads are not limited
	rec, _ = f.do(t, http.MethodGet, "/v1/catalog", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.API.Address = "127.0.0.1"
		c.API.Port = 0
	})
	require.NoError(t, f.srv.Start())

	resp, err := http.Get("http://" + f.srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))
}
