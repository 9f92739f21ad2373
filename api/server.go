// Package api exposes the catalog over HTTP with gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/choreography"
	"github.com/najoast/catalog/config"
	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/metrics"
	"github.com/najoast/catalog/protocol"
)

// Options configures a Server. Metrics, Tracker and Index are optional.
type Options struct {
	API           config.APIConfig
	Monitor       config.MonitorConfig
	WalletFunding ledger.Coins
	Metrics       *metrics.Metrics
	Tracker       *choreography.Tracker
	Index         *catalog.Index
	Logger        *zap.Logger
}

// Server is the HTTP gateway in front of one catalog.
type Server struct {
	sys      *core.System
	cat      *catalog.CatalogClient
	registry *protocol.Registry
	opts     Options
	log      *zap.Logger

	router *gin.Engine
	srv    *http.Server
	ln     net.Listener
	errc   chan error
}

// New builds the gateway and its routes.
func New(sys *core.System, cat *catalog.CatalogClient, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.API.RequestTimeout <= 0 {
		opts.API.RequestTimeout = 10 * time.Second
	}

	s := &Server{
		sys:      sys,
		cat:      cat,
		registry: protocol.DefaultRegistry(),
		opts:     opts,
		log:      opts.Logger.Named("api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
	}

	healthPath := opts.Monitor.HealthPath
	if healthPath == "" {
		healthPath = "/healthz"
	}
	r.GET(healthPath, s.health)
	if opts.Metrics != nil && opts.Monitor.Enabled {
		metricsPath := opts.Monitor.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.GET(metricsPath, gin.WrapH(opts.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	submit := []gin.HandlerFunc{}
	if opts.API.RateLimit > 0 {
		submit = append(submit, rateLimit(opts.API.RateLimit, opts.API.RateBurst))
	}
	v1.POST("/tracks", append(submit, s.addTrack)...)
	v1.POST("/messages", append(submit, s.sendMessage)...)

	v1.GET("/catalog", s.catalogInfo)
	v1.GET("/catalog/track-address", s.trackAddress)
	v1.GET("/catalog/collection-address", s.collectionAddress)
	v1.GET("/tracks", s.tracksByOwner)
	v1.GET("/tracks/recent", s.recentTracks)
	v1.GET("/tracks/:address", s.track)
	v1.GET("/collections/:address", s.collection)
	v1.GET("/actors", s.actors)
	v1.GET("/operations/:id", s.operation)

	s.router = r
	return s
}

// Handler returns the routes as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.API.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.API.ListenAddr(), err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.API.ReadTimeout,
		WriteTimeout: s.opts.API.WriteTimeout,
	}
	s.errc = make(chan error, 1)
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.errc <- err
	}()
	s.log.Info("gateway listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.errc
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.log.Warn("request", fields...)
			return
		}
		s.log.Debug("request", fields...)
	}
}

// rateLimit is a global limiter for submissions.
func rateLimit(perSecond float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
