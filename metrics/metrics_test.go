package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/protocol"
)

func TestLedgerMetrics(t *testing.T) {
	m := New()
	sys := core.NewSystem(core.WithObserver(m))
	require.NoError(t, catalog.Register(sys, catalog.DefaultLimits()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w, err := sys.OpenWallet("artist", ledger.MustParseCoins("100"))
	require.NoError(t, err)
	cat, op, err := catalog.Deploy(ctx, sys, w, ledger.MustParseCoins("1"))
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	album := "Album"
	op, err = cat.AddTrack(ctx, w, ledger.MustParseCoins("1"), "Song", &album)
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("catalog", "AddTrack", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("collection", "CreateOrNotify", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("track", "CreateOrRegister", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deploys.WithLabelValues("catalog")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deploys.WithLabelValues("collection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deploys.WithLabelValues("track")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Bounces))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OperationsActive))
	assert.Equal(t, float64(sys.FeesCollected().Nano()), testutil.ToFloat64(m.FeesNano))
	// one series per operation kind: Deploy and AddTrack
	assert.Equal(t, 2, testutil.CollectAndCount(m.OperationDuration))
}

func TestBounceMetrics(t *testing.T) {
	m := New()
	sys := core.NewSystem(core.WithObserver(m))
	require.NoError(t, catalog.Register(sys, catalog.DefaultLimits()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w, err := sys.OpenWallet("artist", ledger.MustParseCoins("100"))
	require.NoError(t, err)
	cat, op, err := catalog.Deploy(ctx, sys, w, ledger.MustParseCoins("1"))
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	op, err = w.Send(ctx, cat.Address(), ledger.MustParseCoins("1"), protocol.RegisterTrack{}, nil)
	require.NoError(t, err)
	require.NoError(t, op.Wait(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bounces))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("catalog", "RegisterTrack", "failed")))
}

func TestHTTPMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/ping", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalog_http_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
