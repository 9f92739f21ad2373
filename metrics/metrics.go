// Package metrics exports ledger activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/najoast/catalog/core"
)

// Metrics holds all Prometheus metrics. It is a core.Observer and a
// core.OperationObserver.
type Metrics struct {
	registry *prometheus.Registry

	// Ledger metrics
	Transactions      *prometheus.CounterVec
	Bounces           prometheus.Counter
	Deploys           *prometheus.CounterVec
	FeesNano          prometheus.Counter
	OperationsActive  prometheus.Gauge
	OperationDuration *prometheus.HistogramVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the metrics on a dedicated registry, which also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_transactions_total",
				Help: "Transactions processed, by actor template, operation and outcome",
			},
			[]string{"template", "op", "outcome"},
		),
		Bounces: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_bounces_total",
				Help: "Bounce messages emitted after a failed transaction",
			},
		),
		Deploys: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_deploys_total",
				Help: "Actors deployed on their first message",
			},
			[]string{"template"},
		),
		FeesNano: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_fees_nano_total",
				Help: "Compute and forward fees collected, in nano units",
			},
		),
		OperationsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_operations_active",
				Help: "Operations with messages still in flight",
			},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_operation_duration_seconds",
				Help:    "Time from submission until the last message of an operation is processed",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnTransaction implements core.Observer.
func (m *Metrics) OnTransaction(tx *core.Transaction) {
	template := string(tx.Template)
	if template == "" {
		template = "none"
	}
	outcome := "ok"
	if !tx.Success {
		outcome = "failed"
	}
	m.Transactions.WithLabelValues(template, tx.Op, outcome).Inc()

	if tx.Deploy {
		m.Deploys.WithLabelValues(template).Inc()
	}
	for _, out := range tx.Out {
		if out.Bounced {
			m.Bounces.Inc()
		}
	}
	if fees := tx.Fees(); fees > 0 {
		m.FeesNano.Add(float64(fees.Nano()))
	}
}

// OnOperationStart implements core.OperationObserver.
func (m *Metrics) OnOperationStart(op *core.Operation) {
	m.OperationsActive.Inc()
}

// OnOperationDone implements core.OperationObserver.
func (m *Metrics) OnOperationDone(op *core.Operation) {
	m.OperationsActive.Dec()
	m.OperationDuration.WithLabelValues(op.Op).Observe(op.Duration().Seconds())
	if op.SubmitFee > 0 {
		m.FeesNano.Add(float64(op.SubmitFee.Nano()))
	}
}

// Middleware creates a Gin middleware for HTTP metrics collection.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
